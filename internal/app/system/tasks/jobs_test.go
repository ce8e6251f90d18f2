package tasks_test

import (
	"context"
	"testing"
	"time"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/system/tasks"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/bourses/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestLeaseReaperJob(t *testing.T) {
	store := applicationstore.NewMemory()
	codec := testutil.Codec(t)
	inst := primitive.NewObjectID()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	expired := testutil.Application(t, codec, inst, models.StatusPending, testutil.Household{})
	expired.EnrichmentLease = &past
	live := testutil.Application(t, codec, inst, models.StatusPending, testutil.Household{})
	live.EnrichmentLease = &future
	store.Put(expired)
	store.Put(live)

	job := tasks.LeaseReaperJob(store, zap.NewNop(), 0)
	if job.Interval != time.Minute {
		t.Errorf("default interval: got %v", job.Interval)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := store.Get(context.Background(), expired.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EnrichmentLease != nil {
		t.Error("expired lease must be released")
	}
	if got.Version != expired.Version+1 {
		t.Errorf("release must bump the version: got %d", got.Version)
	}

	got, err = store.Get(context.Background(), live.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EnrichmentLease == nil {
		t.Error("live lease must be kept")
	}
}
