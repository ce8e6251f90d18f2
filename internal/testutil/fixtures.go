package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// TestSecret is the payload secret used by test codecs.
const TestSecret = "test-only-payload-secret"

// Codec returns a codec keyed with TestSecret.
func Codec(t *testing.T) *cipher.Codec {
	t.Helper()
	c, err := cipher.NewFromSecret(TestSecret)
	if err != nil {
		t.Fatalf("cipher.NewFromSecret: %v", err)
	}
	return c
}

// Household describes the identity fields of a test application document.
type Household struct {
	GuardianLastName    string
	GuardianFirstNames  string
	GuardianEmail       string
	ApplicantLastName   string
	ApplicantFirstNames string
	FiscalNumber        string
	NoticeReference     string
}

// Document builds the decoded payload of an application for h.
func (h Household) Document() map[string]any {
	return map[string]any{
		"guardian": map[string]any{
			"lastName":   h.GuardianLastName,
			"firstNames": h.GuardianFirstNames,
			"email":      h.GuardianEmail,
		},
		"applicant": map[string]any{
			"lastName":   h.ApplicantLastName,
			"firstNames": h.ApplicantFirstNames,
		},
		"credentials": map[string]any{
			"fiscalNumber":    h.FiscalNumber,
			"noticeReference": h.NoticeReference,
		},
		"household": map[string]any{
			"children": 2.0,
			"income":   18500.0,
		},
	}
}

// Application seals h.Document() and returns an unsaved application of
// institutionID with the given status.
func Application(t *testing.T, c *cipher.Codec, institutionID primitive.ObjectID, status models.Status, h Household) models.Application {
	t.Helper()
	p, err := c.Encode(h.Document())
	if err != nil {
		t.Fatalf("encode test payload: %v", err)
	}
	now := time.Now().UTC()
	return models.Application{
		ID:            primitive.NewObjectID(),
		InstitutionID: institutionID,
		Payload:       p,
		Status:        status,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Fixtures provides helper methods for creating test data in MongoDB.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateInstitution inserts an institution with the given code and name.
func (f *Fixtures) CreateInstitution(ctx context.Context, humanID, name string) models.Institution {
	f.t.Helper()

	now := time.Now().UTC()
	inst := models.Institution{
		ID:        primitive.NewObjectID(),
		HumanID:   humanID,
		Name:      name,
		NameCI:    text.Fold(name),
		Contact:   "secretariat@" + humanID + ".example.org",
		Telephone: "01 23 45 67 89",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("institutions").InsertOne(ctx, inst); err != nil {
		f.t.Fatalf("failed to create test institution: %v", err)
	}
	return inst
}
