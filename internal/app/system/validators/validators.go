// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/store/audit"
	institutionstore "github.com/dalemusser/bourses/internal/app/store/institutions"
	"github.com/dalemusser/bourses/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure(institutionstore.Collection, institutionsSchema())
	ensure(applicationstore.Collection, applicationsSchema())
	ensure(audit.Collection, auditEventsSchema())

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

// nonBlank matches strings with at least one non-space character.
var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func institutionsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"human_id", "name", "name_ci", "contact", "created_at"},
			"properties": bson.M{
				"human_id":   bson.M{"bsonType": "string", "pattern": "^[A-Z0-9]{1,16}$"},
				"name":       nonBlank,
				"name_ci":    nonBlank,
				"contact":    nonBlank,
				"telephone":  bson.M{"bsonType": "string"},
				"created_at": bson.M{"bsonType": "date"},
				"updated_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

// applicationsSchema pins the sealed payload shape. Plaintext fields next
// to the payload are rejected by listing every allowed top-level key.
func applicationsSchema() bson.M {
	statusEnum := bson.A{}
	for _, s := range models.Statuses {
		statusEnum = append(statusEnum, string(s))
	}

	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType":             "object",
			"required":             bson.A{"institution_id", "payload", "status", "version", "created_at"},
			"additionalProperties": false,
			"properties": bson.M{
				"_id":            bson.M{"bsonType": "objectId"},
				"institution_id": bson.M{"bsonType": "objectId"},
				"payload": bson.M{
					"bsonType":             "object",
					"required":             bson.A{"ciphertext", "nonce", "tag"},
					"additionalProperties": false,
					"properties": bson.M{
						"ciphertext": bson.M{"bsonType": "binData"},
						"nonce":      bson.M{"bsonType": "binData"},
						"tag":        bson.M{"bsonType": "binData"},
					},
				},
				"status":  bson.M{"enum": statusEnum},
				"version": bson.M{"bsonType": bson.A{"long", "int"}, "minimum": 1},
				"notification": bson.M{
					"bsonType": "object",
					"required": bson.A{"amount", "decided_at"},
					"properties": bson.M{
						"amount":     bson.M{"bsonType": bson.A{"double", "int", "long"}, "minimum": 0},
						"decided_at": bson.M{"bsonType": "date"},
						"text":       bson.M{"bsonType": "string"},
						"email":      bson.M{"bsonType": "string"},
						"file":       bson.M{"bsonType": "string"},
						"created_at": bson.M{"bsonType": "date"},
					},
				},
				"observations":     bson.M{"bsonType": "string"},
				"enrichment_lease": bson.M{"bsonType": "date"},
				"created_at":       bson.M{"bsonType": "date"},
				"updated_at":       bson.M{"bsonType": "date"},
			},
		},
	}
}

func auditEventsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"timestamp", "category", "event_type", "success"},
			"properties": bson.M{
				"timestamp":      bson.M{"bsonType": "date"},
				"institution_id": bson.M{"bsonType": "objectId"},
				"application_id": bson.M{"bsonType": "objectId"},
				"category":       bson.M{"enum": bson.A{audit.CategoryApplication, audit.CategoryInstitution}},
				"event_type":     nonBlank,
				"success":        bson.M{"bsonType": "bool"},
				"details":        bson.M{"bsonType": "object"},
			},
		},
	}
}
