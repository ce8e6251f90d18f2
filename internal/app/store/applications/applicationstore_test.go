package applicationstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/bourses/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// store is the behavior shared by the MongoDB and in-memory stores.
type store interface {
	Insert(ctx context.Context, rec models.Application) (models.Application, error)
	Get(ctx context.Context, id primitive.ObjectID) (models.Application, error)
	Find(ctx context.Context, q applicationstore.Query) ([]models.Application, error)
	ListByInstitution(ctx context.Context, institutionID primitive.ObjectID) ([]models.Application, error)
	ConditionalUpdate(ctx context.Context, id primitive.ObjectID, expectedVersion int64, patch applicationstore.Patch) (models.Application, error)
	Remove(ctx context.Context, id primitive.ObjectID) error
	CountByStatus(ctx context.Context, institutionID primitive.ObjectID) (map[models.Status]int64, error)
	ReleaseExpiredLeases(ctx context.Context, now time.Time) (int64, error)
	Each(ctx context.Context, fn func(models.Application) error) error
}

func stores(t *testing.T) map[string]func(t *testing.T) store {
	return map[string]func(t *testing.T) store{
		"memory": func(t *testing.T) store { return applicationstore.NewMemory() },
		"mongo": func(t *testing.T) store {
			return applicationstore.New(testutil.SetupTestDB(t))
		},
	}
}

func newApp(institutionID primitive.ObjectID) models.Application {
	return models.Application{
		InstitutionID: institutionID,
		Payload: models.EncodedPayload{
			Ciphertext: []byte{1, 2, 3},
			Nonce:      make([]byte, 24),
			Tag:        make([]byte, 16),
		},
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			inst := primitive.NewObjectID()
			created, err := s.Insert(ctx, newApp(inst))
			if err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
			if created.ID.IsZero() {
				t.Error("expected ID to be assigned")
			}
			if created.Status != models.StatusNew {
				t.Errorf("status: got %q, want %q", created.Status, models.StatusNew)
			}
			if created.Version != 1 {
				t.Errorf("version: got %d, want 1", created.Version)
			}
			if created.CreatedAt.IsZero() {
				t.Error("expected CreatedAt to be set")
			}

			got, err := s.Get(ctx, created.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.InstitutionID != inst {
				t.Errorf("institution: got %s, want %s", got.InstitutionID.Hex(), inst.Hex())
			}
			if string(got.Payload.Ciphertext) != string([]byte{1, 2, 3}) {
				t.Errorf("ciphertext: got %v", got.Payload.Ciphertext)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			_, err := s.Get(ctx, primitive.NewObjectID())
			if !errors.Is(err, sentinel.ErrNotFound) {
				t.Errorf("Get: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ConditionalUpdate(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			created, err := s.Insert(ctx, newApp(primitive.NewObjectID()))
			if err != nil {
				t.Fatalf("Insert failed: %v", err)
			}

			pending := models.StatusPending
			updated, err := s.ConditionalUpdate(ctx, created.ID, 1, applicationstore.Patch{Status: &pending})
			if err != nil {
				t.Fatalf("ConditionalUpdate failed: %v", err)
			}
			if updated.Status != models.StatusPending {
				t.Errorf("status: got %q, want %q", updated.Status, models.StatusPending)
			}
			if updated.Version != 2 {
				t.Errorf("version: got %d, want 2", updated.Version)
			}

			// stale version
			done := models.StatusDone
			_, err = s.ConditionalUpdate(ctx, created.ID, 1, applicationstore.Patch{Status: &done})
			if !errors.Is(err, sentinel.ErrPreconditionFailed) {
				t.Errorf("stale update: got %v, want ErrPreconditionFailed", err)
			}

			got, _ := s.Get(ctx, created.ID)
			if got.Status != models.StatusPending {
				t.Errorf("status after stale update: got %q, want %q", got.Status, models.StatusPending)
			}

			_, err = s.ConditionalUpdate(ctx, primitive.NewObjectID(), 1, applicationstore.Patch{Status: &done})
			if !errors.Is(err, sentinel.ErrNotFound) {
				t.Errorf("missing update: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ConditionalUpdate_NotificationAndLease(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			created, _ := s.Insert(ctx, newApp(primitive.NewObjectID()))

			lease := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
			rec, err := s.ConditionalUpdate(ctx, created.ID, created.Version, applicationstore.Patch{Lease: &lease})
			if err != nil {
				t.Fatalf("set lease: %v", err)
			}
			if rec.EnrichmentLease == nil || !rec.EnrichmentLease.Equal(lease) {
				t.Fatalf("lease: got %v, want %v", rec.EnrichmentLease, lease)
			}

			n := models.Notification{Amount: 120, Text: "Accordée", Email: "a@b.c", DecidedAt: lease}
			rec, err = s.ConditionalUpdate(ctx, created.ID, rec.Version, applicationstore.Patch{Notification: &n, ClearLease: true})
			if err != nil {
				t.Fatalf("set notification: %v", err)
			}
			if rec.EnrichmentLease != nil {
				t.Error("expected lease to be cleared")
			}
			if rec.Notification == nil || rec.Notification.Amount != 120 {
				t.Fatalf("notification: got %+v", rec.Notification)
			}

			rec, err = s.ConditionalUpdate(ctx, created.ID, rec.Version, applicationstore.Patch{ClearNotification: true})
			if err != nil {
				t.Fatalf("clear notification: %v", err)
			}
			if rec.Notification != nil {
				t.Error("expected notification to be cleared")
			}
		})
	}
}

func TestStore_FindFiltersSortsAndPages(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			inst := primitive.NewObjectID()
			other := primitive.NewObjectID()

			var ids []primitive.ObjectID
			for i := 0; i < 5; i++ {
				rec, err := s.Insert(ctx, newApp(inst))
				if err != nil {
					t.Fatalf("Insert failed: %v", err)
				}
				ids = append(ids, rec.ID)
				time.Sleep(2 * time.Millisecond)
			}
			if _, err := s.Insert(ctx, newApp(other)); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}

			done := models.StatusDone
			for i, id := range ids[:2] {
				amt := float64(100 * (i + 1))
				n := models.Notification{Amount: amt}
				if _, err := s.ConditionalUpdate(ctx, id, 1, applicationstore.Patch{Status: &done, Notification: &n}); err != nil {
					t.Fatalf("ConditionalUpdate failed: %v", err)
				}
			}

			all, err := s.Find(ctx, applicationstore.Query{InstitutionID: inst})
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if len(all) != 5 {
				t.Fatalf("Find: got %d, want 5", len(all))
			}
			if all[0].ID != ids[4] {
				t.Errorf("default sort: first is %s, want newest %s", all[0].ID.Hex(), ids[4].Hex())
			}

			newOnly, _ := s.Find(ctx, applicationstore.Query{InstitutionID: inst, Statuses: []models.Status{models.StatusNew, models.StatusPending}})
			if len(newOnly) != 3 {
				t.Errorf("status filter: got %d, want 3", len(newOnly))
			}

			byAmount, _ := s.Find(ctx, applicationstore.Query{InstitutionID: inst, Sort: applicationstore.SortAmount, Limit: 1})
			if len(byAmount) != 1 || byAmount[0].ID != ids[1] {
				t.Errorf("amount sort: got %v, want %s first", byAmount, ids[1].Hex())
			}

			page, _ := s.Find(ctx, applicationstore.Query{InstitutionID: inst, Reverse: true, Offset: 1, Limit: 2})
			if len(page) != 2 || page[0].ID != ids[1] || page[1].ID != ids[2] {
				t.Errorf("reverse page: got %d items", len(page))
			}
		})
	}
}

func TestStore_FindPaidAndUndecidedOrder(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			inst := primitive.NewObjectID()
			decide := func(amount float64) primitive.ObjectID {
				rec, err := s.Insert(ctx, newApp(inst))
				if err != nil {
					t.Fatalf("Insert failed: %v", err)
				}
				done := models.StatusDone
				n := models.Notification{Amount: amount}
				if _, err := s.ConditionalUpdate(ctx, rec.ID, 1, applicationstore.Patch{Status: &done, Notification: &n}); err != nil {
					t.Fatalf("ConditionalUpdate failed: %v", err)
				}
				return rec.ID
			}
			refused := decide(0)
			granted := decide(250)
			undecided, err := s.Insert(ctx, newApp(inst))
			if err != nil {
				t.Fatalf("Insert failed: %v", err)
			}

			byAmount, err := s.Find(ctx, applicationstore.Query{InstitutionID: inst, Sort: applicationstore.SortAmount})
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			want := []primitive.ObjectID{granted, refused, undecided.ID}
			if len(byAmount) != 3 {
				t.Fatalf("amount sort: got %d, want 3", len(byAmount))
			}
			for i, id := range want {
				if byAmount[i].ID != id {
					t.Errorf("amount sort[%d]: got %s, want %s", i, byAmount[i].ID.Hex(), id.Hex())
				}
			}

			reversed, _ := s.Find(ctx, applicationstore.Query{InstitutionID: inst, Sort: applicationstore.SortAmount, Reverse: true})
			if len(reversed) != 3 || reversed[0].ID != undecided.ID || reversed[2].ID != granted {
				t.Errorf("reverse amount sort: undecided must come first and %s last", granted.Hex())
			}

			paid, _ := s.Find(ctx, applicationstore.Query{InstitutionID: inst, Paid: true})
			if len(paid) != 1 || paid[0].ID != granted {
				t.Errorf("paid filter: got %d items, want only %s", len(paid), granted.Hex())
			}
		})
	}
}

func TestStore_ListByInstitutionAndCounts(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			i1, i2 := primitive.NewObjectID(), primitive.NewObjectID()
			a, _ := s.Insert(ctx, newApp(i1))
			s.Insert(ctx, newApp(i1))
			s.Insert(ctx, newApp(i2))

			paused := models.StatusPaused
			if _, err := s.ConditionalUpdate(ctx, a.ID, 1, applicationstore.Patch{Status: &paused}); err != nil {
				t.Fatalf("ConditionalUpdate failed: %v", err)
			}

			list, err := s.ListByInstitution(ctx, i1)
			if err != nil {
				t.Fatalf("ListByInstitution failed: %v", err)
			}
			if len(list) != 2 {
				t.Errorf("ListByInstitution: got %d, want 2", len(list))
			}

			counts, err := s.CountByStatus(ctx, i1)
			if err != nil {
				t.Fatalf("CountByStatus failed: %v", err)
			}
			if counts[models.StatusNew] != 1 || counts[models.StatusPaused] != 1 || counts[models.StatusDone] != 0 {
				t.Errorf("counts: got %v", counts)
			}
		})
	}
}

func TestStore_Remove(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			rec, _ := s.Insert(ctx, newApp(primitive.NewObjectID()))
			if err := s.Remove(ctx, rec.ID); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}
			if _, err := s.Get(ctx, rec.ID); !errors.Is(err, sentinel.ErrNotFound) {
				t.Errorf("Get after Remove: got %v, want ErrNotFound", err)
			}
			if err := s.Remove(ctx, rec.ID); !errors.Is(err, sentinel.ErrNotFound) {
				t.Errorf("second Remove: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ReleaseExpiredLeasesAndEach(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			inst := primitive.NewObjectID()
			expired, _ := s.Insert(ctx, newApp(inst))
			live, _ := s.Insert(ctx, newApp(inst))

			past := time.Now().UTC().Add(-time.Minute)
			future := time.Now().UTC().Add(time.Hour)
			s.ConditionalUpdate(ctx, expired.ID, 1, applicationstore.Patch{Lease: &past})
			s.ConditionalUpdate(ctx, live.ID, 1, applicationstore.Patch{Lease: &future})

			n, err := s.ReleaseExpiredLeases(ctx, time.Now().UTC())
			if err != nil {
				t.Fatalf("ReleaseExpiredLeases failed: %v", err)
			}
			if n != 1 {
				t.Errorf("released: got %d, want 1", n)
			}

			got, _ := s.Get(ctx, expired.ID)
			if got.EnrichmentLease != nil {
				t.Error("expected expired lease to be cleared")
			}
			if got.Version != 3 {
				t.Errorf("version: got %d, want 3", got.Version)
			}

			seen := 0
			if err := s.Each(ctx, func(models.Application) error { seen++; return nil }); err != nil {
				t.Fatalf("Each failed: %v", err)
			}
			if seen != 2 {
				t.Errorf("Each: visited %d, want 2", seen)
			}
		})
	}
}
