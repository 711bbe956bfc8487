// Package task holds the in-memory task registry. Reads return snapshots;
// all mutation goes through the pipeline orchestrator, which is the single
// writer. Tasks, their file trees, and their cached artifacts are evicted
// together after the retention TTL.
package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"codestory/pkg/types"
)

// DefaultRetentionTTL is how long finished tasks stay queryable.
const DefaultRetentionTTL = 24 * time.Hour

// record is everything the store holds for one task.
type record struct {
	task      *types.Task
	tree      *types.FileNode
	diagram   string
	artifacts map[string]*types.Artifact // kind|paramsHash
	cancel    context.CancelFunc
}

// Store is the in-memory task registry.
type Store struct {
	mu      sync.RWMutex
	tasks   map[string]*record
	ttl     time.Duration
	logger  *zap.Logger
	onEvict func(taskID string)
}

// NewStore creates a Store with the given retention TTL. onEvict, if set,
// runs outside the lock for every evicted task so callers can drop indexes
// and extraction directories.
func NewStore(ttl time.Duration, logger *zap.Logger, onEvict func(taskID string)) *Store {
	if ttl <= 0 {
		ttl = DefaultRetentionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		tasks:   make(map[string]*record),
		ttl:     ttl,
		logger:  logger,
		onEvict: onEvict,
	}
}

// Create registers a new task.
func (s *Store) Create(t *types.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.tasks[t.ID] = &record{
		task:      t.Clone(),
		artifacts: make(map[string]*types.Artifact),
	}
	return nil
}

// Get returns a snapshot of the task.
func (s *Store) Get(taskID string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownTask, taskID)
	}
	return rec.task.Clone(), nil
}

// Update applies fn to the live task under the write lock. A terminal task
// rejects every update; failed tasks are never resurrected.
func (s *Store) Update(taskID string, fn func(*types.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownTask, taskID)
	}
	if rec.task.Status.Terminal() {
		return fmt.Errorf("%w: %s", types.ErrTaskTerminal, taskID)
	}
	return fn(rec.task)
}

// Advance sets status, progress and message in one step. Progress is
// monotonic: an update below the current value is clamped up to it, and
// a status behind the current one is rejected.
func (s *Store) Advance(taskID string, status types.TaskStatus, progress int, message string) error {
	return s.Update(taskID, func(t *types.Task) error {
		if status.Order() < t.Status.Order() {
			return fmt.Errorf("status cannot move back from %s to %s", t.Status, status)
		}
		t.Status = status
		if progress > t.Progress {
			t.Progress = progress
		}
		t.Message = message
		return nil
	})
}

// Fail moves the task to its terminal state with the error recorded.
func (s *Store) Fail(taskID string, rec types.ErrorRecord) error {
	return s.Update(taskID, func(t *types.Task) error {
		t.Status = types.StatusFailed
		t.Error = &rec
		t.Message = rec.Reason
		return nil
	})
}

// SetTree attaches the enriched file tree once extraction completes.
func (s *Store) SetTree(taskID string, tree *types.FileNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownTask, taskID)
	}
	rec.tree = tree
	rec.task.FileCount = tree.FileCount()
	return nil
}

// Tree returns the task's file tree. The tree is immutable once set.
func (s *Store) Tree(taskID string) (*types.FileNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownTask, taskID)
	}
	if rec.tree == nil {
		return nil, fmt.Errorf("%w: task %s has no structure yet", types.ErrNotReady, taskID)
	}
	return rec.tree, nil
}

// SetDiagram stores the architecture diagram source built at finalize.
func (s *Store) SetDiagram(taskID, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownTask, taskID)
	}
	rec.diagram = source
	return nil
}

// Diagram returns the task's diagram source, empty until finalize sets it.
func (s *Store) Diagram(taskID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrUnknownTask, taskID)
	}
	return rec.diagram, nil
}

// SetCancel stores the task run's cancel function.
func (s *Store) SetCancel(taskID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.tasks[taskID]; ok {
		rec.cancel = cancel
	}
}

// Cancel invokes the task's cancel function if the task is still running.
// The status transition to failed is the orchestrator's job; Cancel only
// interrupts the run.
func (s *Store) Cancel(taskID string) error {
	s.mu.Lock()
	rec, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrUnknownTask, taskID)
	}
	if rec.task.Status.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrTaskTerminal, taskID)
	}
	cancel := rec.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// artifactKey builds the artifact cache key.
func artifactKey(kind types.ArtifactKind, paramsHash string) string {
	return string(kind) + "|" + paramsHash
}

// PutArtifact caches a generated artifact for (kind, params).
func (s *Store) PutArtifact(taskID string, kind types.ArtifactKind, paramsHash string, artifact *types.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownTask, taskID)
	}
	rec.artifacts[artifactKey(kind, paramsHash)] = artifact
	return nil
}

// GetArtifact returns the cached artifact for (kind, params) if present.
func (s *Store) GetArtifact(taskID string, kind types.ArtifactKind, paramsHash string) (*types.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	artifact, ok := rec.artifacts[artifactKey(kind, paramsHash)]
	return artifact, ok
}

// History returns task snapshots newest-first, up to limit (0 means all).
func (s *Store) History(limit int) []*types.Task {
	s.mu.RLock()
	snapshots := make([]*types.Task, 0, len(s.tasks))
	for _, rec := range s.tasks {
		snapshots = append(snapshots, rec.task.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
		}
		return snapshots[i].ID < snapshots[j].ID
	})
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	return snapshots
}

// Sweep evicts tasks older than the retention TTL and returns their IDs.
// Running tasks are cancelled before eviction.
func (s *Store) Sweep(now time.Time) []string {
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	var evicted []string
	var cancels []context.CancelFunc
	for id, rec := range s.tasks {
		if rec.task.CreatedAt.Before(cutoff) {
			if rec.cancel != nil {
				cancels = append(cancels, rec.cancel)
			}
			delete(s.tasks, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, id := range evicted {
		s.logger.Info("task evicted", zap.String("task", id))
		if s.onEvict != nil {
			s.onEvict(id)
		}
	}
	return evicted
}

// StartSweeper runs Sweep on the given interval until ctx is done.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Sweep(now)
			}
		}
	}()
}

// Len returns the number of live tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
