package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/uniformfit/measure/internal/domain"
	"github.com/uniformfit/measure/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Season                     = domain.Season
	Gender                     = domain.Gender
	SessionMode                = domain.SessionMode
	SessionState               = domain.SessionState
	ProductCatalogEntry        = domain.ProductCatalogEntry
	SupplyCatalogEntry         = domain.SupplyCatalogEntry
	SeasonCatalog              = domain.SeasonCatalog
	UniformLineItem            = domain.UniformLineItem
	SupplyLineItem             = domain.SupplyLineItem
	ItemCountMap               = domain.ItemCountMap
	MeasurementSession         = domain.MeasurementSession
	MeasurementSessionSnapshot = domain.MeasurementSessionSnapshot
	MeasurementData            = domain.MeasurementData
	OrderSubmissionPayload     = domain.OrderSubmissionPayload
	UniformOrderItem           = domain.UniformOrderItem
	SupplyOrderItem            = domain.SupplyOrderItem
)

// Shared gate errors surfaced by every mutating operation.
var (
	// ErrSessionLocked indicates the school's measurement deadline has passed.
	ErrSessionLocked = errors.New("measurement: session locked by deadline")
	// ErrSessionReadOnly indicates the session was opened in readonly mode.
	ErrSessionReadOnly = errors.New("measurement: session is read only")
	// ErrSessionNotInitialized indicates an operation ran before Initialize.
	ErrSessionNotInitialized = errors.New("measurement: session not initialized")
)

// CatalogService normalizes raw measurement catalogs and resolves the data
// needed to seed an editing session.
type CatalogService interface {
	Normalize(ctx context.Context, raw []domain.RawCatalogProduct) SeasonCatalog
	NormalizeSupply(raw []domain.RawSupplyProduct) []SupplyCatalogEntry
	LoadStudentMeasurement(ctx context.Context, studentID string) (StudentMeasurement, error)
}

// StudentMeasurement bundles everything needed to open an editing session.
type StudentMeasurement struct {
	Data     MeasurementData
	Catalog  SeasonCatalog
	Supplies []SupplyCatalogEntry
	Deadline *time.Time
}

// UniformItemService owns the uniform line-item collection of a measurement session.
type UniformItemService interface {
	Initialize(ctx context.Context, session *MeasurementSession, snapshot *MeasurementSessionSnapshot) error
	AddItem(ctx context.Context, session *MeasurementSession, itemID string, season Season) error
	RemoveItem(ctx context.Context, session *MeasurementSession, instanceID string) error
	UpdateSize(ctx context.Context, session *MeasurementSession, instanceID string, size string) error
	UpdateCustomization(ctx context.Context, session *MeasurementSession, instanceID string, text string) error
	AdjustPurchaseCount(ctx context.Context, session *MeasurementSession, instanceID string, delta int) error
	OwnedTotal(session *MeasurementSession, itemID string, season Season) int
}

// SupplyItemService owns the supply line-item collection and its count map.
type SupplyItemService interface {
	Initialize(ctx context.Context, session *MeasurementSession, snapshot *MeasurementSessionSnapshot) error
	AddSameItem(ctx context.Context, session *MeasurementSession, baseInstanceID string) error
	RemoveItem(ctx context.Context, session *MeasurementSession, instanceID string) error
	UpdateCategory(ctx context.Context, session *MeasurementSession, instanceID string, category string) error
	UpdateSize(ctx context.Context, session *MeasurementSession, instanceID string, size string) error
	AdjustCount(ctx context.Context, session *MeasurementSession, instanceID string, delta int) error
}

// SessionService persists and restores in-progress session snapshots, best effort.
type SessionService interface {
	Save(ctx context.Context, session *MeasurementSession)
	Load(ctx context.Context, studentID string) *MeasurementSessionSnapshot
	Clear(ctx context.Context, studentID string)
	ClearAll(ctx context.Context)
}

// MeasurementService drives the session lifecycle: begin, mutate, complete,
// reopen, and confirm. It is the boundary that enforces the deadline lockout
// and persists a snapshot after every meaningful mutation.
type MeasurementService interface {
	BeginSession(ctx context.Context, cmd BeginSessionCommand) (*MeasurementSession, error)
	SetActiveSeason(ctx context.Context, session *MeasurementSession, season Season) error

	AddUniformItem(ctx context.Context, session *MeasurementSession, itemID string, season Season) error
	RemoveUniformItem(ctx context.Context, session *MeasurementSession, instanceID string) error
	UpdateUniformSize(ctx context.Context, session *MeasurementSession, instanceID string, size string) error
	UpdateUniformCustomization(ctx context.Context, session *MeasurementSession, instanceID string, text string) error
	AdjustUniformCount(ctx context.Context, session *MeasurementSession, instanceID string, delta int) error
	UniformOwnedTotal(session *MeasurementSession, itemID string, season Season) int

	AddSupplyItem(ctx context.Context, session *MeasurementSession, baseInstanceID string) error
	RemoveSupplyItem(ctx context.Context, session *MeasurementSession, instanceID string) error
	UpdateSupplyCategory(ctx context.Context, session *MeasurementSession, instanceID string, category string) error
	UpdateSupplySize(ctx context.Context, session *MeasurementSession, instanceID string, size string) error
	AdjustSupplyCount(ctx context.Context, session *MeasurementSession, instanceID string, delta int) error

	Complete(ctx context.Context, session *MeasurementSession, cmd CompleteCommand) (CompleteResult, error)
	Reopen(ctx context.Context, session *MeasurementSession) error
	Confirm(ctx context.Context, session *MeasurementSession, cmd ConfirmCommand) (ConfirmResult, error)
	Discard(ctx context.Context, session *MeasurementSession)
}

// BeginSessionCommand opens an editing session for one student.
type BeginSessionCommand struct {
	StudentID string
	Mode      SessionMode
	OrderID   *string
}

// CompleteCommand triggers the configuring → measurement-complete transition.
// Bypass acknowledges missing mandatory customizations and submits anyway.
type CompleteCommand struct {
	Bypass bool
}

// CompleteResult reports the outcome of a Complete call. When
// MissingCustomizations is non-empty and the command did not bypass, the
// session stays in the configuring state and nothing was submitted.
type CompleteResult struct {
	Submitted             bool
	MissingCustomizations []string
	Payload               OrderSubmissionPayload
	OrderID               *string
}

// ConfirmCommand carries the operator signature for the final confirmation.
type ConfirmCommand struct {
	Signature string
	OnSuccess func()
}

// ConfirmResult reports the server-assigned confirmation outcome.
type ConfirmResult struct {
	ConfirmationID string
	ExportJobID    string
}

// SubmitOrderCommand is the wire-facing submission request handed to the
// order-submission collaborator.
type SubmitOrderCommand struct {
	StudentID string
	Payload   OrderSubmissionPayload
}

// SubmitOrderResult carries the identifiers assigned by the school backend.
type SubmitOrderResult struct {
	OrderID string
}

// OrderSubmitter is the excluded order-submission collaborator: Submit for new
// sessions, Update for edit sessions targeting an existing order.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error)
	UpdateOrder(ctx context.Context, orderID string, cmd SubmitOrderCommand) error
}

// ConfirmOrderCommand is handed to the final-confirmation collaborator.
type ConfirmOrderCommand struct {
	StudentID string
	OrderID   string
	Signature string
	Payload   OrderSubmissionPayload
}

// ConfirmOrderResult carries the server-assigned confirmation reference.
type ConfirmOrderResult struct {
	ConfirmationID string
}

// OrderConfirmer finalizes a submitted order with the operator's signature.
type OrderConfirmer interface {
	ConfirmOrder(ctx context.Context, cmd ConfirmOrderCommand) (ConfirmOrderResult, error)
}

// MeasurementExportMessage is published after a new-mode confirmation so the
// print/PDF collaborator can render the measurement sheet without re-reading
// engine state.
type MeasurementExportMessage struct {
	OrderID        string                    `json:"orderId"`
	ConfirmationID string                    `json:"confirmationId"`
	StudentID      string                    `json:"studentId"`
	StudentName    string                    `json:"studentName"`
	School         string                    `json:"school"`
	UniformItems   []domain.UniformOrderItem `json:"uniformItems"`
	SupplyItems    []domain.SupplyOrderItem  `json:"supplyItems"`
	ConfirmedAt    time.Time                 `json:"confirmedAt"`
}

// ExportJobPublisher fans out measurement-sheet export jobs.
type ExportJobPublisher interface {
	PublishExportJob(ctx context.Context, message MeasurementExportMessage) (string, error)
}

// SubmissionError carries the human-readable message extracted from a failed
// collaborator response. The engine surfaces Message verbatim when present.
type SubmissionError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "submission failed"
}

// Unwrap exposes the underlying error.
func (e *SubmissionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
