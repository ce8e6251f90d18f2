// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/store/audit"
	institutionstore "github.com/dalemusser/bourses/internal/app/store/institutions"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Every collection is reconciled even when an
earlier one fails, and all problems are reported together so startup fails
with the full picture.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string
	for _, set := range indexSets {
		if err := ensureCollection(ctx, db.Collection(set.collection), set.indexes); err != nil {
			problems = append(problems, set.collection+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// index is one desired index of a collection.
type index struct {
	name   string
	keys   bson.D
	unique bool
	sparse bool
}

func (ix index) model() mongo.IndexModel {
	opts := options.Index().SetName(ix.name)
	if ix.unique {
		opts.SetUnique(true)
	}
	if ix.sparse {
		opts.SetSparse(true)
	}
	return mongo.IndexModel{Keys: ix.keys, Options: opts}
}

var indexSets = []struct {
	collection string
	indexes    []index
}{
	{institutionstore.Collection, []index{
		// Public codes are unique (stored upper-cased).
		{name: "uniq_institutions_humanid", keys: bson.D{{Key: "human_id", Value: 1}}, unique: true},
		{name: "idx_institutions_nameci__id", keys: bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}}},
	}},
	{applicationstore.Collection, []index{
		// duplicate resolver corpus scan
		{name: "idx_apps_inst__id", keys: bson.D{{Key: "institution_id", Value: 1}, {Key: "_id", Value: 1}}},
		{name: "idx_apps_inst_status_created__id", keys: bson.D{
			{Key: "institution_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1},
		}},
		{name: "idx_apps_inst_created__id", keys: bson.D{
			{Key: "institution_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1},
		}},
		{name: "idx_apps_inst_amount__id", keys: bson.D{
			{Key: "institution_id", Value: 1}, {Key: "notification.amount", Value: -1}, {Key: "_id", Value: -1},
		}},
		// lease reaper
		{name: "idx_apps_lease", keys: bson.D{{Key: "enrichment_lease", Value: 1}}, sparse: true},
	}},
	{audit.Collection, []index{
		{name: "idx_audit_ts", keys: bson.D{{Key: "timestamp", Value: -1}}},
		{name: "idx_audit_inst_ts", keys: bson.D{{Key: "institution_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{name: "idx_audit_app_ts", keys: bson.D{{Key: "application_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{name: "idx_audit_cat_type_ts", keys: bson.D{
			{Key: "category", Value: 1}, {Key: "event_type", Value: 1}, {Key: "timestamp", Value: -1},
		}},
	}},
}

/* -------------------------------------------------------------------------- */
/* Reconciliation                                                              */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique,omitempty"`
	Sparse bool   `bson:"sparse,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

type action int

const (
	keep action = iota
	create
	// recreate drops the existing index first: same keys under another
	// name or with other options.
	recreate
)

func (a action) String() string {
	switch a {
	case keep:
		return "keep"
	case create:
		return "create"
	default:
		return "recreate"
	}
}

// reconcile decides what to do for want given the indexes already on the
// collection. For recreate it also returns the index to drop.
func reconcile(existing []existingIndex, want index) (action, string) {
	sig := keySig(want.keys)
	for _, ex := range existing {
		if keySig(ex.Key) != sig {
			continue
		}
		if ex.Name == want.name && ex.Unique == want.unique && ex.Sparse == want.sparse {
			return keep, ""
		}
		return recreate, ex.Name
	}
	return create, ""
}

func listIndexes(ctx context.Context, coll *mongo.Collection) ([]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []existingIndex
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out = append(out, idx)
	}
	return out, cur.Err()
}

func ensureCollection(ctx context.Context, coll *mongo.Collection, want []index) error {
	existing, err := listIndexes(ctx, coll)
	if err != nil {
		// A missing collection has no indexes; CreateOne creates it.
		zap.L().Debug("listing indexes failed, creating all",
			zap.String("collection", coll.Name()),
			zap.Error(err))
		existing = nil
	}

	var errs []string
	for _, ix := range want {
		start := time.Now()
		act, drop := reconcile(existing, ix)

		if act == recreate {
			if _, err := coll.Indexes().DropOne(ctx, drop); err != nil {
				errs = append(errs, fmt.Sprintf("%s: drop %s: %v", ix.name, drop, err))
				continue
			}
		}
		if act != keep {
			if _, err := coll.Indexes().CreateOne(ctx, ix.model()); err != nil {
				errs = append(errs, createError(coll.Name(), ix, err))
				continue
			}
		}

		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", ix.name),
			zap.String("keys", keySig(ix.keys)),
			zap.Stringer("action", act),
			zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// createError explains a failed CreateOne. A unique index over duplicated
// values gets the aggregation that lists the offenders.
func createError(collection string, ix index, err error) string {
	if !ix.unique || !mongo.IsDuplicateKeyError(err) {
		return fmt.Sprintf("%s: %v", ix.name, err)
	}
	field := ix.keys[0].Key
	return fmt.Sprintf("%s: cannot create unique index, duplicates present. Example finder:\n"+
		`db.%s.aggregate([{ $group: { _id: "$%s", n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`,
		ix.name, collection, field)
}
