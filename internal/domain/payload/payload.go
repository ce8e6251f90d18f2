// Package payload knows where things live inside a decoded application
// document. The document itself is free-form JSON supplied by the
// household's form; only the paths below are interpreted by the server.
package payload

import "strings"

// Field paths inside a decoded application document.
var (
	GuardianLastName    = []string{"guardian", "lastName"}
	GuardianFirstNames  = []string{"guardian", "firstNames"}
	GuardianEmail       = []string{"guardian", "email"}
	ApplicantLastName   = []string{"applicant", "lastName"}
	ApplicantFirstNames = []string{"applicant", "firstNames"}
	FiscalNumber        = []string{"credentials", "fiscalNumber"}
	NoticeReference     = []string{"credentials", "noticeReference"}
	TaxYear             = []string{"fiscal", "taxYear"}
	IncomeYear          = []string{"fiscal", "incomeYear"}
)

// Identity is the subset of a document used for matching and mail routing.
type Identity struct {
	GuardianLastName    string
	GuardianFirstNames  string
	GuardianEmail       string
	ApplicantLastName   string
	ApplicantFirstNames string
	FiscalNumber        string
	NoticeReference     string
}

// GuardianName returns "LastName FirstNames" with surrounding blanks trimmed.
func (id Identity) GuardianName() string {
	return strings.TrimSpace(id.GuardianLastName + " " + id.GuardianFirstNames)
}

// ApplicantName returns "LastName FirstNames" with surrounding blanks trimmed.
func (id Identity) ApplicantName() string {
	return strings.TrimSpace(id.ApplicantLastName + " " + id.ApplicantFirstNames)
}

// Extract reads the identity fields from doc. Missing or non-string values
// come back empty.
func Extract(doc map[string]any) Identity {
	return Identity{
		GuardianLastName:    String(doc, GuardianLastName...),
		GuardianFirstNames:  String(doc, GuardianFirstNames...),
		GuardianEmail:       String(doc, GuardianEmail...),
		ApplicantLastName:   String(doc, ApplicantLastName...),
		ApplicantFirstNames: String(doc, ApplicantFirstNames...),
		FiscalNumber:        String(doc, FiscalNumber...),
		NoticeReference:     String(doc, NoticeReference...),
	}
}

// HasFiscalEnrichment reports whether the tax-authority years were merged in.
func HasFiscalEnrichment(doc map[string]any) bool {
	return strings.TrimSpace(String(doc, TaxYear...)) != ""
}

// String walks path through nested objects and returns the string at the end.
func String(doc map[string]any, path ...string) string {
	v, ok := lookup(doc, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set stores value at path, creating intermediate objects as needed.
// A non-object value sitting on the path is replaced.
func Set(doc map[string]any, value any, path ...string) {
	if doc == nil || len(path) == 0 {
		return
	}
	cur := doc
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

func lookup(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
