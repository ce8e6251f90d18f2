// internal/app/store/applications/memory.go
package applicationstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"github.com/dalemusser/bourses/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process Store with the same semantics as the MongoDB one.
// Used by tests and by tools running without a database.
type Memory struct {
	mu   sync.Mutex
	recs map[primitive.ObjectID]models.Application
	now  func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		recs: make(map[primitive.ObjectID]models.Application),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Insert(_ context.Context, rec models.Application) (models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if _, exists := m.recs[rec.ID]; exists {
		return models.Application{}, fmt.Errorf("application %s already exists", rec.ID.Hex())
	}
	if rec.Status == "" {
		rec.Status = models.StatusNew
	}
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.recs[rec.ID] = cloneApplication(rec)
	return cloneApplication(rec), nil
}

// Put stores rec as-is, bypassing versioning. Tests use it to plant
// records with arbitrary state, including corrupted payloads.
func (m *Memory) Put(rec models.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = cloneApplication(rec)
}

func (m *Memory) Get(_ context.Context, id primitive.ObjectID) (models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[id]
	if !ok {
		return models.Application{}, fmt.Errorf("application %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	return cloneApplication(rec), nil
}

func (m *Memory) Find(_ context.Context, q Query) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Application
	for _, rec := range m.recs {
		if rec.InstitutionID != q.InstitutionID || !statusIn(rec.Status, q.Statuses) {
			continue
		}
		if q.Paid && (rec.Notification == nil || rec.Notification.Amount <= 0) {
			continue
		}
		out = append(out, cloneApplication(rec))
	}
	sort.Slice(out, less(out, q))

	if q.Offset > 0 {
		if q.Offset >= int64(len(out)) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) ListByInstitution(_ context.Context, institutionID primitive.ObjectID) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Application
	for _, rec := range m.recs {
		if rec.InstitutionID == institutionID {
			out = append(out, cloneApplication(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (m *Memory) ConditionalUpdate(_ context.Context, id primitive.ObjectID, expectedVersion int64, patch Patch) (models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[id]
	if !ok {
		return models.Application{}, fmt.Errorf("application %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	if rec.Version != expectedVersion {
		return models.Application{}, fmt.Errorf("application %s at version %d: %w", id.Hex(), expectedVersion, sentinel.ErrPreconditionFailed)
	}
	patch.apply(&rec, m.now())
	m.recs[id] = rec
	return cloneApplication(rec), nil
}

func (m *Memory) Remove(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.recs[id]; !ok {
		return fmt.Errorf("application %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	delete(m.recs, id)
	return nil
}

func (m *Memory) CountByStatus(_ context.Context, institutionID primitive.ObjectID) (map[models.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[models.Status]int64, len(models.Statuses))
	for _, st := range models.Statuses {
		counts[st] = 0
	}
	for _, rec := range m.recs {
		if rec.InstitutionID == institutionID {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

func (m *Memory) ReleaseExpiredLeases(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.recs {
		if rec.EnrichmentLease == nil || rec.EnrichmentLease.After(now) {
			continue
		}
		Patch{ClearLease: true}.apply(&rec, now)
		m.recs[id] = rec
		n++
	}
	return n, nil
}

func (m *Memory) Each(ctx context.Context, fn func(models.Application) error) error {
	m.mu.Lock()
	all := make([]models.Application, 0, len(m.recs))
	for _, rec := range m.recs {
		all = append(all, cloneApplication(rec))
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID.Hex() < all[j].ID.Hex() })
	for _, rec := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored applications.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func statusIn(s models.Status, set []models.Status) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// compareAmount orders a missing decision below every amount, as MongoDB
// orders a missing field below every number.
func compareAmount(a, b models.Application) int {
	switch {
	case a.Notification == nil && b.Notification == nil:
		return 0
	case a.Notification == nil:
		return -1
	case b.Notification == nil:
		return 1
	}
	return compareFloat(a.Notification.Amount, b.Notification.Amount)
}

// less mirrors the MongoDB sort of Query.sort.
func less(recs []models.Application, q Query) func(i, j int) bool {
	return func(i, j int) bool {
		a, b := recs[i], recs[j]
		var cmp int
		switch q.Sort {
		case SortStatus:
			cmp = compareString(string(a.Status), string(b.Status))
		case SortAmount:
			cmp = compareAmount(b, a)
		default:
			cmp = compareTime(b.CreatedAt, a.CreatedAt)
		}
		if cmp == 0 {
			cmp = compareString(b.ID.Hex(), a.ID.Hex())
			if q.Sort == SortStatus {
				cmp = -cmp
			}
		}
		if q.Reverse {
			cmp = -cmp
		}
		return cmp < 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
