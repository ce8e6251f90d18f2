// Package duplicates finds applications of one institution that describe
// the same household.
//
// Two applications are duplicates when they share an identity key: the
// normalized fiscal number when the document has one, otherwise the
// normalized guardian and applicant names. Matching never crosses
// institutions.
package duplicates

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/app/system/metrics"
	"github.com/dalemusser/bourses/internal/app/system/normalize"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/bourses/internal/domain/payload"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source lists the applications an institution holds.
type Source interface {
	ListByInstitution(ctx context.Context, institutionID primitive.ObjectID) ([]models.Application, error)
}

// Key returns the identity key of a decoded document, or "" when the
// document carries neither a fiscal number nor both names.
func Key(doc map[string]any) string {
	id := payload.Extract(doc)
	if n := normalize.FiscalNumber(id.FiscalNumber); n != "" {
		return "fiscal:" + n
	}
	guardian := normalize.IdentityName(id.GuardianName())
	applicant := normalize.IdentityName(id.ApplicantName())
	if guardian == "" || applicant == "" {
		return ""
	}
	return "names:" + guardian + "|" + applicant
}

// Resolver matches target applications against their institution's corpus.
type Resolver struct {
	source  Source
	codec   *cipher.Codec
	workers int
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New builds a Resolver decoding with at most workers goroutines.
func New(source Source, codec *cipher.Codec, workers int, m *metrics.Metrics, log *zap.Logger) *Resolver {
	if workers <= 0 {
		workers = 4
	}
	return &Resolver{source: source, codec: codec, workers: workers, metrics: m, log: log}
}

// FindDuplicates returns, for every target, the sorted ids of the other
// applications of institutionID sharing its identity key. Targets that
// belong to another institution get none.
//
// Corpus applications that fail to decode are logged and left out. A
// target outside the corpus is decoded on its own. A target that cannot be
// decoded, in the corpus or not, fails the call.
func (r *Resolver) FindDuplicates(ctx context.Context, targets []models.Application, institutionID primitive.ObjectID) (map[primitive.ObjectID][]primitive.ObjectID, error) {
	out := make(map[primitive.ObjectID][]primitive.ObjectID, len(targets))
	if len(targets) == 0 {
		return out, nil
	}

	corpus, err := r.source.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	keys, failed, err := r.keys(ctx, corpus)
	if err != nil {
		return nil, err
	}

	index := make(map[string][]primitive.ObjectID)
	keyOf := make(map[primitive.ObjectID]string, len(corpus))
	for i, rec := range corpus {
		keyOf[rec.ID] = keys[i]
		if keys[i] != "" {
			index[keys[i]] = append(index[keys[i]], rec.ID)
		}
	}

	found := 0
	for _, t := range targets {
		if t.InstitutionID != institutionID {
			out[t.ID] = nil
			continue
		}

		if err, bad := failed[t.ID]; bad {
			return nil, fmt.Errorf("decode target %s: %w", t.ID.Hex(), err)
		}
		key, ok := keyOf[t.ID]
		if !ok {
			doc, err := r.codec.DecodeRecord(t)
			r.metrics.ObservePayload("decode", err)
			if err != nil {
				return nil, fmt.Errorf("decode target %s: %w", t.ID.Hex(), err)
			}
			key = Key(doc)
		}

		var dups []primitive.ObjectID
		if key != "" {
			for _, id := range index[key] {
				if id != t.ID {
					dups = append(dups, id)
				}
			}
		}
		sort.Slice(dups, func(i, j int) bool { return bytes.Compare(dups[i][:], dups[j][:]) < 0 })
		out[t.ID] = dups
		if len(dups) > 0 {
			found++
		}
	}
	r.metrics.AddDuplicatesFound(found)
	return out, nil
}

// keys decodes the corpus in parallel and returns each record's key, ""
// for records that failed to decode. The decode errors are returned by id.
func (r *Resolver) keys(ctx context.Context, corpus []models.Application) ([]string, map[primitive.ObjectID]error, error) {
	keys := make([]string, len(corpus))
	errs := make([]error, len(corpus))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range corpus {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := r.codec.DecodeRecord(corpus[i])
			r.metrics.ObservePayload("decode", err)
			if err != nil {
				errs[i] = err
				return nil
			}
			keys[i] = Key(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	failed := make(map[primitive.ObjectID]error)
	for i, err := range errs {
		if err != nil {
			failed[corpus[i].ID] = err
			r.log.Warn("excluding undecodable application from duplicate matching",
				zap.String("application_id", corpus[i].ID.Hex()),
				zap.String("institution_id", corpus[i].InstitutionID.Hex()))
		}
	}
	r.metrics.ObserveCorpus(len(corpus), len(failed))
	return keys, failed, nil
}
