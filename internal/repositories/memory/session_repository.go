package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	domain "github.com/uniformfit/measure/internal/domain"
)

// SessionSnapshotRepository is an in-memory snapshot store useful for tests and
// local development without a Firestore backend.
type SessionSnapshotRepository struct {
	mu        sync.Mutex
	snapshots map[string]domain.MeasurementSessionSnapshot
}

// NewSessionSnapshotRepository constructs an empty memory-backed snapshot repository.
func NewSessionSnapshotRepository() *SessionSnapshotRepository {
	return &SessionSnapshotRepository{snapshots: make(map[string]domain.MeasurementSessionSnapshot)}
}

type notFoundError struct {
	studentID string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("memory: snapshot for student %q not found", e.studentID)
}

func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }

// Save stores a copy of the snapshot keyed by student id.
func (r *SessionSnapshotRepository) Save(_ context.Context, snapshot domain.MeasurementSessionSnapshot) error {
	studentID := strings.TrimSpace(snapshot.StudentID)
	if studentID == "" {
		return fmt.Errorf("memory: student id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[studentID] = cloneSnapshot(snapshot)
	return nil
}

// Find returns a copy of the stored snapshot or a not-found repository error.
func (r *SessionSnapshotRepository) Find(_ context.Context, studentID string) (domain.MeasurementSessionSnapshot, error) {
	trimmed := strings.TrimSpace(studentID)

	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.snapshots[trimmed]
	if !ok {
		return domain.MeasurementSessionSnapshot{}, &notFoundError{studentID: trimmed}
	}
	return cloneSnapshot(snapshot), nil
}

// Delete removes the snapshot for the student; missing snapshots are ignored.
func (r *SessionSnapshotRepository) Delete(_ context.Context, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, strings.TrimSpace(studentID))
	return nil
}

// DeleteAll removes every stored snapshot.
func (r *SessionSnapshotRepository) DeleteAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = make(map[string]domain.MeasurementSessionSnapshot)
	return nil
}

func cloneSnapshot(snapshot domain.MeasurementSessionSnapshot) domain.MeasurementSessionSnapshot {
	dup := snapshot
	dup.UniformItems = append([]domain.UniformLineItem(nil), snapshot.UniformItems...)
	dup.SupplyItems = append([]domain.SupplyLineItem(nil), snapshot.SupplyItems...)
	dup.SupplyCounts = snapshot.SupplyCounts.Clone()
	return dup
}
