// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB collection holding audit events.
const Collection = "audit_events"

// Event categories
const (
	CategoryApplication = "application"
	CategoryInstitution = "institution"
)

// Application event types
const (
	EventApplicationCreated             = "application_created"
	EventApplicationOpened              = "application_opened"
	EventApplicationEnriched            = "application_enriched"
	EventApplicationEnrichmentFailed    = "application_enrichment_failed"
	EventApplicationStatusChanged       = "application_status_changed"
	EventApplicationNotified            = "application_notified"
	EventApplicationNotificationDeleted = "application_notification_deleted"
	EventApplicationObservationsSaved   = "application_observations_saved"
	EventApplicationDeleted             = "application_deleted"
)

// Institution event types
const (
	EventInstitutionCreated = "institution_created"
	EventInstitutionUpdated = "institution_updated"
)

// Event represents an audit event. Details never carry payload plaintext.
type Event struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Timestamp     time.Time           `bson:"timestamp" json:"timestamp"`
	InstitutionID *primitive.ObjectID `bson:"institution_id,omitempty" json:"institutionId,omitempty"`
	ApplicationID *primitive.ObjectID `bson:"application_id,omitempty" json:"applicationId,omitempty"`

	// Event classification
	Category  string `bson:"category" json:"category"`
	EventType string `bson:"event_type" json:"eventType"`

	// Context
	IP        string `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty" json:"userAgent,omitempty"`

	// Outcome
	Success       bool   `bson:"success" json:"success"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failureReason,omitempty"`

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	InstitutionID *primitive.ObjectID
	ApplicationID *primitive.ObjectID
	Category      string
	EventType     string
	StartTime     *time.Time
	EndTime       *time.Time
	Limit         int64
	Offset        int64
}

func (f QueryFilter) query() bson.M {
	query := bson.M{}
	if f.InstitutionID != nil {
		query["institution_id"] = f.InstitutionID
	}
	if f.ApplicationID != nil {
		query["application_id"] = f.ApplicationID
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.EventType != "" {
		query["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		timeQuery := bson.M{}
		if f.StartTime != nil {
			timeQuery["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			timeQuery["$lte"] = *f.EndTime
		}
		query["timestamp"] = timeQuery
	}
	return query
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Query retrieves audit events matching the given filter, most recent first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.query())
}

// GetByApplication retrieves the history of one application.
func (s *Store) GetByApplication(ctx context.Context, applicationID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{
		ApplicationID: &applicationID,
		Limit:         limit,
	})
}

// GetRecent retrieves the most recent audit events.
func (s *Store) GetRecent(ctx context.Context, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{
		Limit: limit,
	})
}
