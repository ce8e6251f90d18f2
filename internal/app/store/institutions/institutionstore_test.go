package institutionstore_test

import (
	"context"
	"errors"
	"testing"

	institutionstore "github.com/dalemusser/bourses/internal/app/store/institutions"
	"github.com/dalemusser/bourses/internal/app/system/indexes"
	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/bourses/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type store interface {
	Create(ctx context.Context, inst models.Institution) (models.Institution, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Institution, error)
	GetByHumanID(ctx context.Context, humanID string) (models.Institution, error)
	List(ctx context.Context) ([]models.Institution, error)
	Update(ctx context.Context, id primitive.ObjectID, inst models.Institution) (models.Institution, error)
}

func stores() map[string]func(t *testing.T) store {
	return map[string]func(t *testing.T) store{
		"memory": func(t *testing.T) store { return institutionstore.NewMemory() },
		"mongo": func(t *testing.T) store {
			db := testutil.SetupTestDB(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()
			// the unique human_id index backs ErrDuplicateInstitution
			if err := indexes.EnsureAll(ctx, db); err != nil {
				t.Fatalf("EnsureAll failed: %v", err)
			}
			return institutionstore.New(db)
		},
	}
}

func TestStore_Create(t *testing.T) {
	for name, mk := range stores() {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			created, err := s.Create(ctx, models.Institution{
				HumanID:   " clg-042 ",
				Name:      "  Collège   Jean Moulin ",
				Contact:   "Secretariat@Clg042.example.org",
				Telephone: "01 23 45 67 89",
			})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if created.ID == primitive.NilObjectID {
				t.Error("expected ID to be assigned")
			}
			if created.HumanID != "CLG-042" {
				t.Errorf("HumanID: got %q, want %q", created.HumanID, "CLG-042")
			}
			if created.Name != "Collège Jean Moulin" {
				t.Errorf("Name: got %q, want %q", created.Name, "Collège Jean Moulin")
			}
			if created.NameCI == "" {
				t.Error("expected NameCI to be set")
			}
			if created.Contact != "secretariat@clg042.example.org" {
				t.Errorf("Contact: got %q", created.Contact)
			}

			_, err = s.Create(ctx, models.Institution{HumanID: "CLG-042", Name: "Other"})
			if !errors.Is(err, institutionstore.ErrDuplicateInstitution) {
				t.Errorf("duplicate Create: got %v, want ErrDuplicateInstitution", err)
			}
		})
	}
}

func TestStore_Lookups(t *testing.T) {
	for name, mk := range stores() {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			b, _ := s.Create(ctx, models.Institution{HumanID: "B", Name: "Lycée Berthelot"})
			a, _ := s.Create(ctx, models.Institution{HumanID: "A", Name: "Collège Arago"})

			got, err := s.GetByID(ctx, b.ID)
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			if got.HumanID != "B" {
				t.Errorf("GetByID: got %q", got.HumanID)
			}

			got, err = s.GetByHumanID(ctx, "a")
			if err != nil {
				t.Fatalf("GetByHumanID failed: %v", err)
			}
			if got.ID != a.ID {
				t.Errorf("GetByHumanID: got %s, want %s", got.ID.Hex(), a.ID.Hex())
			}

			if _, err := s.GetByHumanID(ctx, "missing"); !errors.Is(err, sentinel.ErrNotFound) {
				t.Errorf("GetByHumanID missing: got %v, want ErrNotFound", err)
			}
			if _, err := s.GetByID(ctx, primitive.NewObjectID()); !errors.Is(err, sentinel.ErrNotFound) {
				t.Errorf("GetByID missing: got %v, want ErrNotFound", err)
			}

			list, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(list) != 2 || list[0].ID != a.ID {
				t.Errorf("List: expected Arago first, got %+v", list)
			}
		})
	}
}

func TestStore_Update(t *testing.T) {
	for name, mk := range stores() {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			inst, _ := s.Create(ctx, models.Institution{HumanID: "U", Name: "Old", Telephone: "1"})

			updated, err := s.Update(ctx, inst.ID, models.Institution{Contact: "NEW@example.org"})
			if err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			if updated.Contact != "new@example.org" {
				t.Errorf("Contact: got %q", updated.Contact)
			}
			if updated.Name != "Old" || updated.Telephone != "1" {
				t.Errorf("untouched fields changed: %+v", updated)
			}

			if _, err := s.Update(ctx, primitive.NewObjectID(), models.Institution{Name: "x"}); !errors.Is(err, sentinel.ErrNotFound) {
				t.Errorf("Update missing: got %v, want ErrNotFound", err)
			}
		})
	}
}
