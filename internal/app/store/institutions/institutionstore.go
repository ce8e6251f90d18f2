// internal/app/store/institutions/institutionstore.go
package institutionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/normalize"
	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"github.com/dalemusser/bourses/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB collection holding institutions.
const Collection = "institutions"

var ErrDuplicateInstitution = errors.New("an institution with this code already exists")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

func (s *Store) Create(ctx context.Context, inst models.Institution) (models.Institution, error) {
	now := time.Now().UTC()
	inst.ID = primitive.NewObjectID()
	inst.HumanID = normalize.HumanID(inst.HumanID)
	inst.Name = normalize.Name(inst.Name)
	inst.NameCI = text.Fold(inst.Name)
	inst.Contact = normalize.Email(inst.Contact)
	inst.CreatedAt = now
	inst.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, inst); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Institution{}, ErrDuplicateInstitution
		}
		return models.Institution{}, err
	}
	return inst, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Institution, error) {
	return s.findOne(ctx, bson.M{"_id": id}, id.Hex())
}

// GetByHumanID looks an institution up by its public code, case-insensitively.
func (s *Store) GetByHumanID(ctx context.Context, humanID string) (models.Institution, error) {
	code := normalize.HumanID(humanID)
	return s.findOne(ctx, bson.M{"human_id": code}, code)
}

func (s *Store) findOne(ctx context.Context, filter bson.M, label string) (models.Institution, error) {
	var inst models.Institution
	err := s.c.FindOne(ctx, filter).Decode(&inst)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Institution{}, fmt.Errorf("institution %s: %w", label, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Institution{}, err
	}
	return inst, nil
}

// List returns institutions ordered by folded name.
func (s *Store) List(ctx context.Context) ([]models.Institution, error) {
	cur, err := s.c.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Institution
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update modifies the non-empty mutable fields of inst and returns the result.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, inst models.Institution) (models.Institution, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if inst.Name != "" {
		name := normalize.Name(inst.Name)
		set["name"] = name
		set["name_ci"] = text.Fold(name)
	}
	if inst.Contact != "" {
		set["contact"] = normalize.Email(inst.Contact)
	}
	if inst.Telephone != "" {
		set["telephone"] = inst.Telephone
	}

	var out models.Institution
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Institution{}, fmt.Errorf("institution %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Institution{}, err
	}
	return out, nil
}
