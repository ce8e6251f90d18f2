package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/bourses/internal/app/store/audit"
	"github.com/dalemusser/bourses/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Log(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	appID := primitive.NewObjectID()
	event := audit.Event{
		Category:      audit.CategoryApplication,
		EventType:     audit.EventApplicationCreated,
		ApplicationID: &appID,
		IP:            "192.168.1.1",
		Success:       true,
	}

	if err := store.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetByApplication(ctx, appID, 10)
	if err != nil {
		t.Fatalf("GetByApplication failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
}

func TestStore_Log_WithDetails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	appID := primitive.NewObjectID()
	err := store.Log(ctx, audit.Event{
		Category:      audit.CategoryApplication,
		EventType:     audit.EventApplicationStatusChanged,
		ApplicationID: &appID,
		Success:       true,
		Details:       map[string]string{"from": "pending", "to": "paused"},
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, _ := store.GetByApplication(ctx, appID, 10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Details["to"] != "paused" {
		t.Errorf("details[to]: got %q, want %q", events[0].Details["to"], "paused")
	}
}

func TestStore_Query_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	inst := primitive.NewObjectID()
	other := primitive.NewObjectID()
	base := time.Now().UTC().Add(-time.Hour)

	events := []audit.Event{
		{Category: audit.CategoryApplication, EventType: audit.EventApplicationCreated, InstitutionID: &inst, Timestamp: base, Success: true},
		{Category: audit.CategoryApplication, EventType: audit.EventApplicationOpened, InstitutionID: &inst, Timestamp: base.Add(time.Minute), Success: true},
		{Category: audit.CategoryInstitution, EventType: audit.EventInstitutionUpdated, InstitutionID: &inst, Timestamp: base.Add(2 * time.Minute), Success: true},
		{Category: audit.CategoryApplication, EventType: audit.EventApplicationCreated, InstitutionID: &other, Timestamp: base.Add(3 * time.Minute), Success: true},
	}
	for _, e := range events {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter audit.QueryFilter
		want   int
	}{
		{"by institution", audit.QueryFilter{InstitutionID: &inst}, 3},
		{"by category", audit.QueryFilter{Category: audit.CategoryApplication}, 3},
		{"by event type", audit.QueryFilter{EventType: audit.EventApplicationCreated}, 2},
		{"institution and category", audit.QueryFilter{InstitutionID: &inst, Category: audit.CategoryApplication}, 2},
		{"limit", audit.QueryFilter{Limit: 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Query: got %d events, want %d", len(got), tt.want)
			}
		})
	}

	n, err := store.CountByFilter(ctx, audit.QueryFilter{InstitutionID: &inst})
	if err != nil {
		t.Fatalf("CountByFilter failed: %v", err)
	}
	if n != 3 {
		t.Errorf("CountByFilter: got %d, want 3", n)
	}

	recent, _ := store.GetRecent(ctx, 10)
	if len(recent) != 4 || recent[0].EventType != audit.EventApplicationCreated || *recent[0].InstitutionID != other {
		t.Errorf("GetRecent: expected most recent event first")
	}
}

func TestStore_GetRecent_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	events, err := store.GetRecent(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}
