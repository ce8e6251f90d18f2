// Package lifecycle drives applications through their statuses.
//
//	new ──access──▶ pending ──notification──▶ done
//	                 │  ▲
//	     operator    ▼  │ operator
//	              paused | error
//
// Accessing a pending application also performs, once, the fiscal
// enrichment: the tax-authority years are looked up from the notice
// credentials and merged into the sealed payload. Every mutation is a
// conditional update on the record version; a conflict is retried once
// against a fresh read.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	applicationstore "github.com/dalemusser/bourses/internal/app/store/applications"
	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/app/system/fiscal"
	"github.com/dalemusser/bourses/internal/app/system/metrics"
	"github.com/dalemusser/bourses/internal/app/system/normalize"
	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/bourses/internal/domain/payload"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrInvalidTransition is returned when a status change is not allowed
// from the application's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists the statuses an operator may move an application to.
// done is terminal and only reached through SaveNotification.
var transitions = map[models.Status][]models.Status{
	models.StatusNew:     {models.StatusPending},
	models.StatusPending: {models.StatusPaused, models.StatusError},
	models.StatusPaused:  {models.StatusPending},
	models.StatusError:   {models.StatusPending},
}

// CanTransition reports whether an operator may move from one status to another.
func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Store is the persistence the machine needs.
type Store interface {
	Get(ctx context.Context, id primitive.ObjectID) (models.Application, error)
	ConditionalUpdate(ctx context.Context, id primitive.ObjectID, expectedVersion int64, patch applicationstore.Patch) (models.Application, error)
}

// Options tunes the machine. Zero values take the defaults.
type Options struct {
	// LeaseDuration bounds how long an enrichment claim blocks other callers.
	LeaseDuration time.Duration
	// LookupTimeout bounds a single fiscal lookup.
	LookupTimeout time.Duration
}

const (
	defaultLease         = 2 * time.Minute
	defaultLookupTimeout = 10 * time.Second
)

// Machine applies lifecycle events to stored applications.
type Machine struct {
	store   Store
	codec   *cipher.Codec
	lookup  fiscal.Lookup
	opts    Options
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// New builds a Machine. lookup may be nil, which disables enrichment.
func New(store Store, codec *cipher.Codec, lookup fiscal.Lookup, opts Options, m *metrics.Metrics, log *zap.Logger) *Machine {
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = defaultLease
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	return &Machine{
		store:   store,
		codec:   codec,
		lookup:  lookup,
		opts:    opts,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Result is the outcome of an access.
type Result struct {
	// Record is the application as stored after the access.
	Record models.Application
	// Opened is set when this access moved the application from new to pending.
	Opened bool
	// Enriched is set when this access merged the fiscal years into the payload.
	Enriched bool
}

// attempt carries what an access already did across its retry, so the
// retry neither claims a second lease nor repeats the lookup.
type attempt struct {
	lease *time.Time
	found *fiscal.Result
}

// OnAccess applies the "accessed for display" event to rec.
//
// A new application becomes pending. A pending application without fiscal
// enrichment is enriched through the lookup, at most once across concurrent
// callers. Other statuses are returned unchanged.
//
// When the lookup fails the lease is released, the record is left as it was
// and the error matches sentinel.ErrExternalLookup; Result.Record is still
// the current record.
func (m *Machine) OnAccess(ctx context.Context, rec models.Application) (Result, error) {
	var a attempt
	res, err := m.access(ctx, rec, &a)
	if !errors.Is(err, sentinel.ErrPreconditionFailed) {
		return res, err
	}

	m.metrics.IncrementPreconditionConflict()
	fresh, gerr := m.store.Get(ctx, rec.ID)
	if gerr != nil {
		return Result{Record: rec}, gerr
	}
	res2, err := m.access(ctx, fresh, &a)
	res2.Opened = res2.Opened || res.Opened
	return res2, err
}

func (m *Machine) access(ctx context.Context, rec models.Application, a *attempt) (Result, error) {
	switch rec.Status {
	case models.StatusNew:
		pending := models.StatusPending
		updated, err := m.store.ConditionalUpdate(ctx, rec.ID, rec.Version, applicationstore.Patch{Status: &pending})
		if err != nil {
			return Result{Record: rec}, err
		}
		m.metrics.IncrementTransition(string(models.StatusNew), string(models.StatusPending))
		return Result{Record: updated, Opened: true}, nil
	case models.StatusPending:
		return m.enrich(ctx, rec, a)
	default:
		return Result{Record: rec}, nil
	}
}

func (m *Machine) enrich(ctx context.Context, rec models.Application, a *attempt) (Result, error) {
	if m.lookup == nil {
		return Result{Record: rec}, nil
	}

	doc, err := m.codec.DecodeRecord(rec)
	m.metrics.ObservePayload("decode", err)
	if err != nil {
		return Result{Record: rec}, fmt.Errorf("decode application %s: %w", rec.ID.Hex(), err)
	}
	if payload.HasFiscalEnrichment(doc) {
		return Result{Record: rec}, nil
	}

	id := payload.Extract(doc)
	number := normalize.FiscalNumber(id.FiscalNumber)
	reference := normalize.Name(id.NoticeReference)
	if number == "" || reference == "" {
		return Result{Record: rec}, nil
	}

	now := m.now()
	if rec.EnrichmentLease != nil && rec.EnrichmentLease.After(now) && !a.owns(rec.EnrichmentLease) {
		// another caller is looking this application up
		return Result{Record: rec}, nil
	}

	if a.found == nil {
		lease := now.Add(m.opts.LeaseDuration).Truncate(time.Millisecond)
		claimed, err := m.store.ConditionalUpdate(ctx, rec.ID, rec.Version, applicationstore.Patch{Lease: &lease})
		if err != nil {
			return Result{Record: rec}, err
		}
		a.lease = &lease
		rec = claimed

		found, err := m.callLookup(ctx, number, reference)
		if err != nil {
			m.log.Warn("fiscal lookup failed",
				zap.String("application_id", rec.ID.Hex()),
				zap.String("kind", fiscal.KindOf(err)),
				zap.Error(err))
			return Result{Record: m.release(ctx, rec)}, fmt.Errorf("enrich application %s: %w", rec.ID.Hex(), err)
		}
		a.found = &found
	}

	payload.Set(doc, a.found.TaxYear, payload.TaxYear...)
	payload.Set(doc, a.found.IncomeYear, payload.IncomeYear...)
	enc, err := m.codec.Encode(doc)
	m.metrics.ObservePayload("encode", err)
	if err != nil {
		return Result{Record: m.release(ctx, rec)}, fmt.Errorf("encode application %s: %w", rec.ID.Hex(), err)
	}

	updated, err := m.store.ConditionalUpdate(ctx, rec.ID, rec.Version, applicationstore.Patch{
		Payload:    &enc,
		ClearLease: true,
	})
	if err != nil {
		return Result{Record: rec}, err
	}
	m.log.Info("application enriched", zap.String("application_id", rec.ID.Hex()))
	return Result{Record: updated, Enriched: true}, nil
}

func (a *attempt) owns(lease *time.Time) bool {
	return a.lease != nil && lease != nil && a.lease.Equal(*lease)
}

func (m *Machine) callLookup(ctx context.Context, number, reference string) (fiscal.Result, error) {
	lctx, cancel := context.WithTimeout(ctx, m.opts.LookupTimeout)
	defer cancel()
	return m.lookup.Lookup(lctx, number, reference)
}

// release drops the enrichment lease on rec and returns the record as
// stored afterwards. A failed release is logged; the lease then simply
// expires.
func (m *Machine) release(ctx context.Context, rec models.Application) models.Application {
	// the caller's context may be what failed the lookup
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	released, err := m.store.ConditionalUpdate(rctx, rec.ID, rec.Version, applicationstore.Patch{ClearLease: true})
	if err != nil {
		m.log.Warn("enrichment lease not released",
			zap.String("application_id", rec.ID.Hex()),
			zap.Error(err))
		return rec
	}
	return released
}

// Change is the before and after of an explicit edit.
type Change struct {
	Before models.Application
	After  models.Application
}

// Opened reports whether the edit moved the application from new to pending.
func (c Change) Opened() bool {
	return c.Before.Status == models.StatusNew && c.After.Status == models.StatusPending
}

// Update reads application id, asks fn for a patch and applies it
// conditionally, retrying once on a version conflict. fn may return an
// error to abort.
func (m *Machine) Update(ctx context.Context, id primitive.ObjectID, fn func(rec models.Application) (applicationstore.Patch, error)) (Change, error) {
	var lastErr error
	for i := 0; i < 2; i++ {
		rec, err := m.store.Get(ctx, id)
		if err != nil {
			return Change{}, err
		}
		patch, err := fn(rec)
		if err != nil {
			return Change{Before: rec, After: rec}, err
		}
		updated, err := m.store.ConditionalUpdate(ctx, id, rec.Version, patch)
		if err == nil {
			if updated.Status != rec.Status {
				m.metrics.IncrementTransition(string(rec.Status), string(updated.Status))
			}
			return Change{Before: rec, After: updated}, nil
		}
		if !errors.Is(err, sentinel.ErrPreconditionFailed) {
			return Change{}, err
		}
		m.metrics.IncrementPreconditionConflict()
		lastErr = err
	}
	return Change{}, lastErr
}

// SetStatus applies an operator transition.
func (m *Machine) SetStatus(ctx context.Context, id primitive.ObjectID, to models.Status) (Change, error) {
	return m.Update(ctx, id, func(rec models.Application) (applicationstore.Patch, error) {
		if !CanTransition(rec.Status, to) {
			return applicationstore.Patch{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, rec.Status, to)
		}
		return applicationstore.Patch{Status: &to}, nil
	})
}

// SaveNotification closes the application with its decision. It applies
// from any status and overwrites an earlier notification.
func (m *Machine) SaveNotification(ctx context.Context, id primitive.ObjectID, n models.Notification) (Change, error) {
	done := models.StatusDone
	return m.Update(ctx, id, func(models.Application) (applicationstore.Patch, error) {
		return applicationstore.Patch{Status: &done, Notification: &n, ClearLease: true}, nil
	})
}

// ClearNotification removes the decision. The status stays done.
func (m *Machine) ClearNotification(ctx context.Context, id primitive.ObjectID) (Change, error) {
	return m.Update(ctx, id, func(models.Application) (applicationstore.Patch, error) {
		return applicationstore.Patch{ClearNotification: true}, nil
	})
}

// SaveObservations replaces the staff observations. The caller sanitizes.
func (m *Machine) SaveObservations(ctx context.Context, id primitive.ObjectID, text string) (Change, error) {
	return m.Update(ctx, id, func(models.Application) (applicationstore.Patch, error) {
		return applicationstore.Patch{Observations: &text}, nil
	})
}
