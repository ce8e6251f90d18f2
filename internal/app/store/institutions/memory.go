// internal/app/store/institutions/memory.go
package institutionstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/normalize"
	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"github.com/dalemusser/bourses/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process institution store for tests and tools.
type Memory struct {
	mu    sync.Mutex
	insts map[primitive.ObjectID]models.Institution
}

func NewMemory() *Memory {
	return &Memory{insts: make(map[primitive.ObjectID]models.Institution)}
}

func (m *Memory) Create(_ context.Context, inst models.Institution) (models.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst.HumanID = normalize.HumanID(inst.HumanID)
	for _, existing := range m.insts {
		if existing.HumanID == inst.HumanID {
			return models.Institution{}, ErrDuplicateInstitution
		}
	}
	now := time.Now().UTC()
	inst.ID = primitive.NewObjectID()
	inst.Name = normalize.Name(inst.Name)
	inst.NameCI = text.Fold(inst.Name)
	inst.Contact = normalize.Email(inst.Contact)
	inst.CreatedAt = now
	inst.UpdatedAt = now
	m.insts[inst.ID] = inst
	return inst, nil
}

func (m *Memory) GetByID(_ context.Context, id primitive.ObjectID) (models.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.insts[id]
	if !ok {
		return models.Institution{}, fmt.Errorf("institution %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	return inst, nil
}

func (m *Memory) GetByHumanID(_ context.Context, humanID string) (models.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code := normalize.HumanID(humanID)
	for _, inst := range m.insts {
		if inst.HumanID == code {
			return inst, nil
		}
	}
	return models.Institution{}, fmt.Errorf("institution %s: %w", code, sentinel.ErrNotFound)
}

func (m *Memory) List(_ context.Context) ([]models.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Institution, 0, len(m.insts))
	for _, inst := range m.insts {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NameCI != out[j].NameCI {
			return out[i].NameCI < out[j].NameCI
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (m *Memory) Update(_ context.Context, id primitive.ObjectID, inst models.Institution) (models.Institution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.insts[id]
	if !ok {
		return models.Institution{}, fmt.Errorf("institution %s: %w", id.Hex(), sentinel.ErrNotFound)
	}
	if inst.Name != "" {
		cur.Name = normalize.Name(inst.Name)
		cur.NameCI = text.Fold(cur.Name)
	}
	if inst.Contact != "" {
		cur.Contact = normalize.Email(inst.Contact)
	}
	if inst.Telephone != "" {
		cur.Telephone = inst.Telephone
	}
	cur.UpdatedAt = time.Now().UTC()
	m.insts[id] = cur
	return cur, nil
}
