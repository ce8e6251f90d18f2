// Package rekey re-seals every stored application payload under a new key.
package rekey

import (
	"context"
	"errors"
	"fmt"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the persistence a rotation walks and updates.
type Store interface {
	Each(ctx context.Context, fn func(models.Application) error) error
	ConditionalUpdate(ctx context.Context, id primitive.ObjectID, expectedVersion int64, patch applicationstore.Patch) (models.Application, error)
}

// Failure is an application the rotation could not re-seal.
type Failure struct {
	ID  primitive.ObjectID
	Err error
}

// Report summarizes a rotation.
type Report struct {
	Scanned int
	Rekeyed int
	// Current counts payloads that already open under the new key.
	Current  int
	Failures []Failure
}

// Run decodes every application with from and re-encodes it with to through
// a conditional update. Per-record failures are collected in the report and
// do not stop the walk; only a failing scan or a cancelled context does.
// With dryRun set nothing is written.
func Run(ctx context.Context, store Store, from, to *cipher.Codec, dryRun bool, log *zap.Logger) (Report, error) {
	var rep Report
	err := store.Each(ctx, func(rec models.Application) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep.Scanned++

		doc, err := from.DecodeRecord(rec)
		if err != nil {
			if _, err2 := to.DecodeRecord(rec); err2 == nil {
				rep.Current++
				return nil
			}
			rep.fail(log, rec.ID, fmt.Errorf("decode: %w", err))
			return nil
		}

		sealed, err := to.Encode(doc)
		if err != nil {
			rep.fail(log, rec.ID, fmt.Errorf("encode: %w", err))
			return nil
		}
		if dryRun {
			rep.Rekeyed++
			return nil
		}

		if _, err := store.ConditionalUpdate(ctx, rec.ID, rec.Version, applicationstore.Patch{Payload: &sealed}); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			rep.fail(log, rec.ID, fmt.Errorf("update: %w", err))
			return nil
		}
		rep.Rekeyed++
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("scan applications: %w", err)
	}

	log.Info("payload rotation finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("scanned", rep.Scanned),
		zap.Int("rekeyed", rep.Rekeyed),
		zap.Int("current", rep.Current),
		zap.Int("failed", len(rep.Failures)))
	return rep, nil
}

func (r *Report) fail(log *zap.Logger, id primitive.ObjectID, err error) {
	r.Failures = append(r.Failures, Failure{ID: id, Err: err})
	log.Warn("payload rotation failed", zap.String("application_id", id.Hex()), zap.Error(err))
}
