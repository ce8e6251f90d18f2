// internal/app/store/applications/applicationstore.go
package applicationstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"github.com/dalemusser/bourses/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB collection holding applications.
const Collection = "applications"

// Store persists applications in MongoDB. Every mutation after Insert goes
// through ConditionalUpdate, which bumps the version field.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// Insert stores a new application at version 1.
func (s *Store) Insert(ctx context.Context, rec models.Application) (models.Application, error) {
	now := time.Now().UTC()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if rec.Status == "" {
		rec.Status = models.StatusNew
	}
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, rec); err != nil {
		return models.Application{}, err
	}
	return rec, nil
}

// Get loads one application. A missing document yields sentinel.ErrNotFound.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.Application, error) {
	var rec models.Application
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Application{}, fmt.Errorf("application %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Application{}, err
	}
	return rec, nil
}

// Find returns one page of an institution's applications.
func (s *Store) Find(ctx context.Context, q Query) ([]models.Application, error) {
	opts := options.Find().SetSort(q.sort())
	if q.Offset > 0 {
		opts.SetSkip(q.Offset)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	return s.find(ctx, q.filter(), opts)
}

// ListByInstitution returns every application of an institution.
func (s *Store) ListByInstitution(ctx context.Context, institutionID primitive.ObjectID) ([]models.Application, error) {
	return s.find(ctx, bson.M{"institution_id": institutionID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Application, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recs []models.Application
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// ConditionalUpdate applies patch only if the stored version still equals
// expectedVersion, and returns the updated application.
//
// It fails with sentinel.ErrPreconditionFailed when another writer got
// there first and with sentinel.ErrNotFound when the application is gone.
func (s *Store) ConditionalUpdate(ctx context.Context, id primitive.ObjectID, expectedVersion int64, patch Patch) (models.Application, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec models.Application
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		patch.update(time.Now().UTC()),
		opts,
	).Decode(&rec)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Application{}, err
	}

	n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": id})
	if cerr != nil {
		return models.Application{}, cerr
	}
	if n == 0 {
		return models.Application{}, fmt.Errorf("application %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	return models.Application{}, fmt.Errorf("application %s at version %d: %w", id.Hex(), expectedVersion, sentinel.ErrPreconditionFailed)
}

// Remove deletes an application.
func (s *Store) Remove(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("application %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	return nil
}

// CountByStatus returns the number of applications per status for one institution.
// Statuses without applications are present with a zero count.
func (s *Store) CountByStatus(ctx context.Context, institutionID primitive.ObjectID) (map[models.Status]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"institution_id": institutionID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "n": bson.M{"$sum": 1}}}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Status models.Status `bson:"_id"`
		N      int64         `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[models.Status]int64, len(models.Statuses))
	for _, st := range models.Statuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// ReleaseExpiredLeases clears enrichment leases that expired before now.
// Returns the number of applications released.
func (s *Store) ReleaseExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"enrichment_lease": bson.M{"$lte": now}},
		bson.M{
			"$unset": bson.M{"enrichment_lease": ""},
			"$set":   bson.M{"updated_at": now},
			"$inc":   bson.M{"version": 1},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Each calls fn for every stored application in _id order, stopping at the
// first error fn returns.
func (s *Store) Each(ctx context.Context, fn func(models.Application) error) error {
	cur, err := s.c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var rec models.Application
		if err := cur.Decode(&rec); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return cur.Err()
}
