// internal/domain/models/institution.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Institution is a school receiving scholarship applications.
// HumanID is the public code families use to reach its form.
type Institution struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	HumanID   string             `bson:"human_id" json:"humanId"`
	Name      string             `bson:"name" json:"name"`
	NameCI    string             `bson:"name_ci" json:"-"`
	Contact   string             `bson:"contact" json:"contact"`
	Telephone string             `bson:"telephone" json:"telephone"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`
}
