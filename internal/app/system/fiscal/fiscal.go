// Package fiscal queries the tax-authority service that confirms a
// household's tax notice and reports the tax and income years it covers.
package fiscal

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/bourses/internal/app/system/sentinel"
)

// Result is what the tax authority reports for one notice.
type Result struct {
	TaxYear    string `json:"taxYear"`
	IncomeYear string `json:"incomeYear"`
}

// Lookup resolves a fiscal number and notice reference. Implementations
// make a single attempt and honour ctx cancellation.
type Lookup interface {
	Lookup(ctx context.Context, fiscalNumber, reference string) (Result, error)
}

// Failure kinds carried by LookupError.
const (
	KindNotFound        = "not_found"
	KindUnavailable     = "unavailable"
	KindTimeout         = "timeout"
	KindInvalidResponse = "invalid_response"
)

// LookupError is returned by every Lookup failure. It matches
// sentinel.ErrExternalLookup under errors.Is.
type LookupError struct {
	Kind string
	Err  error
}

func (e *LookupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fiscal lookup: %s", e.Kind)
	}
	return fmt.Sprintf("fiscal lookup: %s: %v", e.Kind, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool {
	return target == sentinel.ErrExternalLookup
}

// KindOf returns the failure kind of err, or "" when err is not a LookupError.
func KindOf(err error) string {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
