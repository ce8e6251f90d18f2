package records

import (
	"time"

	"github.com/dalemusser/bourses/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// View is an application as shown to staff: its metadata, the decoded
// document and the duplicates found in its institution. It exists only in
// responses and is never stored.
type View struct {
	ID            primitive.ObjectID   `json:"id"`
	InstitutionID primitive.ObjectID   `json:"institutionId"`
	Status        models.Status        `json:"status"`
	Notification  *models.Notification `json:"notification,omitempty"`
	Observations  string               `json:"observations,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`

	Data        map[string]any       `json:"data"`
	IsDuplicate bool                 `json:"isDuplicate"`
	Duplicates  []primitive.ObjectID `json:"duplicates"`
}

func newView(rec models.Application, doc map[string]any, dups []primitive.ObjectID) View {
	if dups == nil {
		dups = []primitive.ObjectID{}
	}
	return View{
		ID:            rec.ID,
		InstitutionID: rec.InstitutionID,
		Status:        rec.Status,
		Notification:  rec.Notification,
		Observations:  rec.Observations,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		Data:          doc,
		IsDuplicate:   len(dups) > 0,
		Duplicates:    dups,
	}
}
