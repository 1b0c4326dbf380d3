package flashcards

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps generations in process memory. It backs the CLI and deployments
// without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	generations map[uuid.UUID]Generation
	errors      []GenerationErrorLog
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		generations: make(map[uuid.UUID]Generation),
		now:         time.Now,
	}
}

func (m *MemoryStore) SaveGeneration(ctx context.Context, gen *Generation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gen.CreatedAt = m.now().UTC()
	stored := *gen
	stored.Proposals = append([]Proposal(nil), gen.Proposals...)
	m.generations[gen.ID] = stored
	return nil
}

func (m *MemoryStore) LogGenerationError(_ context.Context, entry GenerationErrorLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errors = append(m.errors, entry)
	return nil
}

// Generation returns a stored generation by id.
func (m *MemoryStore) Generation(id uuid.UUID) (Generation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gen, ok := m.generations[id]
	return gen, ok
}

// ErrorLogs returns a copy of the recorded failures in insertion order.
func (m *MemoryStore) ErrorLogs() []GenerationErrorLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]GenerationErrorLog(nil), m.errors...)
}
