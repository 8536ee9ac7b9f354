package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uniformfit/measure/internal/repositories"
)

var (
	errSessionRepositoryRequired = errors.New("session service: snapshot repository is required")
	errSessionClockRequired      = errors.New("session service: clock is required")
)

// defaultSnapshotTTL bounds how long an interrupted session stays resumable.
const defaultSnapshotTTL = 24 * time.Hour

// SessionServiceDeps wires the snapshot store and ambient dependencies.
type SessionServiceDeps struct {
	Repository repositories.SessionSnapshotRepository
	Clock      func() time.Time
	TTL        time.Duration
	Logger     func(context.Context, string, map[string]any)
}

type sessionService struct {
	repo   repositories.SessionSnapshotRepository
	now    func() time.Time
	ttl    time.Duration
	logger func(context.Context, string, map[string]any)
}

// NewSessionService constructs a SessionService enforcing dependency validation.
func NewSessionService(deps SessionServiceDeps) (SessionService, error) {
	if deps.Repository == nil {
		return nil, errSessionRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errSessionClockRequired
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	service := &sessionService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		ttl:    ttl,
		logger: logger,
	}
	return service, nil
}

// Save persists the session's restorable state under its student id, stamping
// the capture time. Persistence is best effort; failures are logged only.
func (s *sessionService) Save(ctx context.Context, session *MeasurementSession) {
	if s == nil || session == nil {
		return
	}
	studentID := strings.TrimSpace(session.StudentID)
	if studentID == "" {
		return
	}

	snapshot := session.Snapshot()
	snapshot.StudentID = studentID
	snapshot.CapturedAt = s.now()

	if err := s.repo.Save(ctx, snapshot); err != nil {
		s.logger(ctx, "session.snapshot_save_failed", map[string]any{
			"studentID": studentID,
			"error":     err.Error(),
		})
	}
}

// Load returns the stored snapshot for the student, or nil when none exists.
// An expired snapshot is deleted on read and treated as absent; every read
// failure is also treated as absence.
func (s *sessionService) Load(ctx context.Context, studentID string) *MeasurementSessionSnapshot {
	if s == nil {
		return nil
	}
	sid := strings.TrimSpace(studentID)
	if sid == "" {
		return nil
	}

	snapshot, err := s.repo.Find(ctx, sid)
	if err != nil {
		if !isRepoNotFound(err) {
			s.logger(ctx, "session.snapshot_load_failed", map[string]any{
				"studentID": sid,
				"error":     err.Error(),
			})
		}
		return nil
	}

	if s.now().Sub(snapshot.CapturedAt) > s.ttl {
		s.logger(ctx, "session.snapshot_expired", map[string]any{
			"studentID":  sid,
			"capturedAt": snapshot.CapturedAt,
		})
		s.Clear(ctx, sid)
		return nil
	}

	restored := snapshot
	return &restored
}

// Clear removes the student's snapshot. Clearing an absent snapshot is not an error.
func (s *sessionService) Clear(ctx context.Context, studentID string) {
	if s == nil {
		return
	}
	sid := strings.TrimSpace(studentID)
	if sid == "" {
		return
	}
	if err := s.repo.Delete(ctx, sid); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "session.snapshot_clear_failed", map[string]any{
			"studentID": sid,
			"error":     err.Error(),
		})
	}
}

// ClearAll removes every stored snapshot.
func (s *sessionService) ClearAll(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.repo.DeleteAll(ctx); err != nil {
		s.logger(ctx, "session.snapshot_clear_all_failed", map[string]any{
			"error": err.Error(),
		})
	}
}
