// internal/domain/models/application.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the lifecycle state of a scholarship application.
type Status string

const (
	StatusNew     Status = "new"
	StatusPending Status = "pending"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
	StatusDone    Status = "done"
)

// Statuses lists every lifecycle state in display order.
var Statuses = []Status{StatusNew, StatusPending, StatusPaused, StatusError, StatusDone}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// EncodedPayload is the sealed form of an application's confidential data.
// Tag is the authentication tag split off the sealed ciphertext.
type EncodedPayload struct {
	Ciphertext []byte `bson:"ciphertext"`
	Nonce      []byte `bson:"nonce"`
	Tag        []byte `bson:"tag"`
}

// IsZero reports whether no part of the payload is set.
func (p EncodedPayload) IsZero() bool {
	return len(p.Ciphertext) == 0 && len(p.Nonce) == 0 && len(p.Tag) == 0
}

// Notification is the decision attached to an application when it is closed.
type Notification struct {
	Amount    float64   `bson:"amount" json:"amount"`
	DecidedAt time.Time `bson:"decided_at" json:"decidedAt"`
	Text      string    `bson:"text" json:"text"`
	Email     string    `bson:"email" json:"email"`
	File      string    `bson:"file,omitempty" json:"file,omitempty"` // derived letter path in file storage
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Application is a scholarship request submitted by a household to an institution.
// The confidential data lives only in Payload; everything else is routing
// and lifecycle metadata.
type Application struct {
	ID              primitive.ObjectID `bson:"_id"`
	InstitutionID   primitive.ObjectID `bson:"institution_id"`
	Payload         EncodedPayload     `bson:"payload"`
	Status          Status             `bson:"status"`
	Notification    *Notification      `bson:"notification,omitempty"`
	Observations    string             `bson:"observations,omitempty"`
	Version         int64              `bson:"version"`
	EnrichmentLease *time.Time         `bson:"enrichment_lease,omitempty"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}
