package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/arbiter/pkg/audit"
)

// MemoryStorage is an in-memory audit.Backend for tests and development.
// It stores deep copies so callers can never mutate persisted logs.
type MemoryStorage struct {
	mu         sync.RWMutex
	logs       map[string]*audit.DecisionLog
	operations []*audit.OperationRecord
	reports    []*audit.ReportSnapshot
	closed     bool

	// FailWrites makes every write return an error, for failure-path tests.
	FailWrites error
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{logs: make(map[string]*audit.DecisionLog)}
}

// SetFailWrites makes subsequent writes fail with err (nil restores writes).
func (s *MemoryStorage) SetFailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailWrites = err
}

func (s *MemoryStorage) checkWritable(op string) error {
	if s.closed {
		return audit.NewPersistenceError("memory", op, fmt.Errorf("storage is closed"))
	}
	if s.FailWrites != nil {
		return audit.NewPersistenceError("memory", op, s.FailWrites)
	}
	return nil
}

// Store implements audit.Storage.
func (s *MemoryStorage) Store(ctx context.Context, log *audit.DecisionLog) error {
	return s.StoreBatch(ctx, []*audit.DecisionLog{log})
}

// StoreBatch implements audit.Storage.
func (s *MemoryStorage) StoreBatch(ctx context.Context, logs []*audit.DecisionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable("store"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return audit.NewPersistenceError("memory", "store", err)
	}
	for _, log := range logs {
		if _, exists := s.logs[log.ID]; exists {
			return audit.NewPersistenceError("memory", "store", fmt.Errorf("duplicate log id %s", log.ID))
		}
	}
	for _, log := range logs {
		s.logs[log.ID] = cloneLog(log)
	}
	return nil
}

// Get implements audit.Storage.
func (s *MemoryStorage) Get(_ context.Context, id string) (*audit.DecisionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[id]
	if !ok {
		return nil, audit.ErrNotFound
	}
	return cloneLog(log), nil
}

// Query implements audit.Storage.
func (s *MemoryStorage) Query(_ context.Context, q *audit.Query) ([]*audit.DecisionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*audit.DecisionLog
	for _, log := range s.logs {
		if matches(log, q) {
			out = append(out, cloneLog(log))
		}
	}
	sortLogs(out, q)
	return paginate(out, q), nil
}

// QueryStream implements audit.Storage.
func (s *MemoryStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.DecisionLog, <-chan error, error) {
	logs, err := s.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	logsCh := make(chan *audit.DecisionLog, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(logsCh)
		defer close(errCh)

		for _, log := range logs {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case logsCh <- log:
			}
		}
	}()

	return logsCh, errCh, nil
}

// Count implements audit.Storage.
func (s *MemoryStorage) Count(_ context.Context, q *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, log := range s.logs {
		if matches(log, q) {
			n++
		}
	}
	return n, nil
}

// SetOutcome implements audit.Storage.
func (s *MemoryStorage) SetOutcome(_ context.Context, id string, outcome *audit.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable("set_outcome"); err != nil {
		return err
	}
	log, ok := s.logs[id]
	if !ok {
		return audit.ErrNotFound
	}
	if log.Outcome != nil {
		return audit.ErrOutcomeAlreadySet
	}
	cp := *outcome
	log.Outcome = &cp
	return nil
}

// Tiers implements audit.Storage.
func (s *MemoryStorage) Tiers(context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[int]bool{}
	var tiers []int
	for _, log := range s.logs {
		if y := log.Audit.RetentionYears; !seen[y] {
			seen[y] = true
			tiers = append(tiers, y)
		}
	}
	sort.Ints(tiers)
	return tiers, nil
}

// Purge implements audit.Storage.
func (s *MemoryStorage) Purge(_ context.Context, retentionYears int, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable("purge"); err != nil {
		return 0, err
	}
	var n int64
	for id, log := range s.logs {
		if log.Audit.RetentionYears == retentionYears && log.Timestamp.Before(cutoff) {
			delete(s.logs, id)
			n++
		}
	}
	return n, nil
}

// Ping implements audit.Storage.
func (s *MemoryStorage) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("storage is closed")
	}
	return nil
}

// Close implements audit.Storage.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// AppendOperation implements audit.OperationsStore.
func (s *MemoryStorage) AppendOperation(_ context.Context, op *audit.OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable("append_operation"); err != nil {
		return err
	}
	cp := *op
	s.operations = append(s.operations, &cp)
	return nil
}

// ListOperations implements audit.OperationsStore. Newest entries come first.
func (s *MemoryStorage) ListOperations(_ context.Context, since time.Time, limit int) ([]*audit.OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*audit.OperationRecord
	for i := len(s.operations) - 1; i >= 0; i-- {
		op := s.operations[i]
		if op.At.Before(since) {
			continue
		}
		cp := *op
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SaveReport implements audit.OperationsStore.
func (s *MemoryStorage) SaveReport(_ context.Context, snapshot *audit.ReportSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable("save_report"); err != nil {
		return err
	}
	cp := *snapshot
	cp.Payload = append([]byte(nil), snapshot.Payload...)
	s.reports = append(s.reports, &cp)
	return nil
}

// ListReports implements audit.OperationsStore. Newest snapshots come first.
func (s *MemoryStorage) ListReports(_ context.Context, reportType string, limit int) ([]*audit.ReportSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*audit.ReportSnapshot
	for i := len(s.reports) - 1; i >= 0; i-- {
		r := s.reports[i]
		if reportType != "" && r.Type != reportType {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
