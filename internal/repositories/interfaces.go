package repositories

import (
	"context"

	domain "github.com/uniformfit/measure/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// SessionSnapshotRepository persists in-progress measurement session snapshots
// keyed by student id. Implementations are expected to be durable but dumb:
// expiry policy lives in the session service.
type SessionSnapshotRepository interface {
	Save(ctx context.Context, snapshot domain.MeasurementSessionSnapshot) error
	Find(ctx context.Context, studentID string) (domain.MeasurementSessionSnapshot, error)
	Delete(ctx context.Context, studentID string) error
	DeleteAll(ctx context.Context) error
}

// MeasurementDataRepository resolves the student identity, school deadline, and
// raw recommended-product catalogs used to seed an editing session. The
// concrete transport (school backend API) is owned by an excluded collaborator.
type MeasurementDataRepository interface {
	FetchMeasurementData(ctx context.Context, studentID string) (domain.MeasurementData, error)
}
