package auditlog_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dalemusser/bourses/internal/app/store/audit"
	"github.com/dalemusser/bourses/internal/app/system/auditlog"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/bourses/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Log(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) all() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

func application() models.Application {
	return models.Application{
		ID:            primitive.NewObjectID(),
		InstitutionID: primitive.NewObjectID(),
		Status:        models.StatusPending,
	}
}

func TestLogger_NilLogger(t *testing.T) {
	// nil logger should be a no-op (not panic)
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.ApplicationCreated(ctx, application())
	logger.StatusChanged(ctx, application(), models.StatusPending, models.StatusPaused)
}

func TestLogger_Destinations(t *testing.T) {
	tests := []struct {
		setting  string
		wantDB   int
		wantLogs int
	}{
		{"off", 0, 0},
		{"db", 1, 0},
		{"log", 0, 1},
		{"all", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			rec := &recorder{}
			core, logs := observer.New(zapcore.InfoLevel)
			logger := auditlog.New(rec, zap.New(core), auditlog.Config{
				Application: tt.setting,
				Institution: tt.setting,
			})
			ctx, cancel := testutil.TestContext()
			defer cancel()

			logger.ApplicationCreated(ctx, application())

			if got := len(rec.all()); got != tt.wantDB {
				t.Errorf("stored events: got %d, want %d", got, tt.wantDB)
			}
			if got := logs.FilterMessage("audit event").Len(); got != tt.wantLogs {
				t.Errorf("zap entries: got %d, want %d", got, tt.wantLogs)
			}
		})
	}
}

func TestLogger_CategoryFilteredByConfig(t *testing.T) {
	rec := &recorder{}
	logger := auditlog.New(rec, zap.NewNop(), auditlog.Config{
		Application: "off",
		Institution: "db",
	})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.ApplicationOpened(ctx, application())
	logger.InstitutionCreated(ctx, models.Institution{ID: primitive.NewObjectID(), HumanID: "CLG-1"})

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Category != audit.CategoryInstitution {
		t.Errorf("Category: got %q, want %q", events[0].Category, audit.CategoryInstitution)
	}
	if events[0].Details["human_id"] != "CLG-1" {
		t.Errorf("human_id detail: got %q", events[0].Details["human_id"])
	}
}

func TestLogger_EventShapes(t *testing.T) {
	rec := &recorder{}
	logger := auditlog.New(rec, zap.NewNop(), auditlog.Config{Application: "db"})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	app := application()
	logger.StatusChanged(ctx, app, models.StatusPending, models.StatusPaused)
	logger.Notified(ctx, app, models.Notification{Amount: 150, Email: "student@example.org", Text: "confidential"})
	logger.EnrichmentFailed(ctx, app, "timeout")
	logger.ApplicationDeleted(ctx, app.InstitutionID, app.ID)

	events := rec.all()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	status := events[0]
	if status.Details["from"] != "pending" || status.Details["to"] != "paused" {
		t.Errorf("status details: got %v", status.Details)
	}
	if status.ApplicationID == nil || *status.ApplicationID != app.ID {
		t.Error("expected ApplicationID to be set")
	}

	notified := events[1]
	if notified.Details["amount"] != "150.00" || notified.Details["email_sent"] != "true" {
		t.Errorf("notified details: got %v", notified.Details)
	}
	for _, v := range notified.Details {
		if v == "confidential" {
			t.Error("letter text must not be recorded")
		}
	}

	failed := events[2]
	if failed.Success || failed.FailureReason != "timeout" {
		t.Errorf("enrichment failure: got success=%v reason=%q", failed.Success, failed.FailureReason)
	}

	if events[3].EventType != audit.EventApplicationDeleted {
		t.Errorf("EventType: got %q", events[3].EventType)
	}
}

func TestLogger_WithRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded for wins", map[string]string{"X-Forwarded-For": "203.0.113.195", "X-Real-IP": "192.168.1.1"}, "203.0.113.195"},
		{"real ip", map[string]string{"X-Real-IP": "192.168.1.1"}, "192.168.1.1"},
		{"remote addr", nil, "127.0.0.1:12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			logger := auditlog.New(rec, zap.NewNop(), auditlog.Config{Application: "db"})

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "127.0.0.1:12345"
			req.Header.Set("User-Agent", "TestBrowser/1.0")
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			ctx := auditlog.WithRequest(req.Context(), req)

			logger.ApplicationOpened(ctx, application())

			events := rec.all()
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if events[0].IP != tt.want {
				t.Errorf("IP: got %q, want %q", events[0].IP, tt.want)
			}
			if events[0].UserAgent != "TestBrowser/1.0" {
				t.Errorf("UserAgent: got %q", events[0].UserAgent)
			}
		})
	}
}

func TestLogger_StoresToMongo(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Application: "db"})
	app := application()
	logger.ObservationsSaved(ctx, models.Application{
		ID:            app.ID,
		InstitutionID: app.InstitutionID,
		Observations:  "<p>follow up</p>",
	})

	events, err := store.GetByApplication(ctx, app.ID, 10)
	if err != nil {
		t.Fatalf("GetByApplication failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventType != audit.EventApplicationObservationsSaved {
		t.Errorf("EventType: got %q", events[0].EventType)
	}
}
