// internal/app/features/institutions/edit.go
package institutions

import (
	"net/http"
	"strings"
	"unicode"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/system/inputval"
	"github.com/dalemusser/bourses/internal/app/system/limits"
	"github.com/dalemusser/bourses/internal/app/system/timeouts"
	"github.com/dalemusser/bourses/internal/domain/models"
	"go.uber.org/zap"
)

const maxHumanIDLen = 16

type institutionInput struct {
	HumanID   string `json:"humanId"`
	Name      string `json:"name"`
	Contact   string `json:"contact"`
	Telephone string `json:"telephone"`
}

func (in *institutionInput) trim() {
	in.HumanID = strings.TrimSpace(in.HumanID)
	in.Name = strings.TrimSpace(in.Name)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Telephone = strings.TrimSpace(in.Telephone)
}

func validHumanID(s string) bool {
	if s == "" || len(s) > maxHumanIDLen {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// validate checks a create request; update requests set creating to false
// and may leave fields empty.
func (in institutionInput) validate(creating bool) error {
	var problems []string
	if creating {
		if !validHumanID(in.HumanID) {
			problems = append(problems, "humanId must be 1 to 16 letters or digits")
		}
		if in.Name == "" {
			problems = append(problems, "name is required")
		}
		if in.Contact == "" {
			problems = append(problems, "contact is required")
		}
	} else if in.HumanID != "" {
		problems = append(problems, "humanId cannot be changed")
	}
	if in.Contact != "" && !inputval.IsValidEmail(in.Contact) {
		problems = append(problems, "contact must be an e-mail address")
	}
	if len(problems) > 0 {
		return uierrors.Invalid(problems...)
	}
	return nil
}

func (in institutionInput) model() models.Institution {
	return models.Institution{
		HumanID:   in.HumanID,
		Name:      in.Name,
		Contact:   in.Contact,
		Telephone: in.Telephone,
	}
}

// HandleCreate handles POST /api/institutions.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in institutionInput
	if err := uierrors.DecodeJSON(w, r, limits.MaxInstitutionSize, &in); err != nil {
		h.ErrLog.Write(w, r, "create institution: decode body", err)
		return
	}
	in.trim()
	if err := in.validate(true); err != nil {
		h.ErrLog.Write(w, r, "create institution: invalid input", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Short(), "create institution")
	defer cancel()

	inst, err := h.Store.Create(ctx, in.model())
	if err != nil {
		h.ErrLog.Write(w, r, "create institution failed", err)
		return
	}
	h.Audit.InstitutionCreated(ctx, inst)
	h.Log.Info("institution created",
		zap.String("institution_id", inst.ID.Hex()),
		zap.String("human_id", inst.HumanID))

	w.Header().Set("Location", "/api/institutions/"+inst.ID.Hex())
	uierrors.WriteJSON(w, http.StatusCreated, inst)
}

// HandleUpdate handles PUT /api/institutions/{id}. Empty fields keep their
// current value; the public code never changes.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r)
	if err != nil {
		h.ErrLog.Write(w, r, "update institution: bad id", err)
		return
	}

	var in institutionInput
	if err := uierrors.DecodeJSON(w, r, limits.MaxInstitutionSize, &in); err != nil {
		h.ErrLog.Write(w, r, "update institution: decode body", err)
		return
	}
	in.trim()
	if err := in.validate(false); err != nil {
		h.ErrLog.Write(w, r, "update institution: invalid input", err)
		return
	}

	ctx, cancel := h.requestContext(r, timeouts.Short(), "update institution")
	defer cancel()

	inst, err := h.Store.Update(ctx, id, in.model())
	if err != nil {
		h.ErrLog.Write(w, r, "update institution failed", err)
		return
	}
	h.Audit.InstitutionUpdated(ctx, inst)
	uierrors.WriteJSON(w, http.StatusOK, inst)
}
