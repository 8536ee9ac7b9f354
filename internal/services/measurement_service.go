package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/uniformfit/measure/internal/domain"
	"github.com/uniformfit/measure/internal/platform/observability"
)

var (
	errMeasurementCatalogRequired  = errors.New("measurement service: catalog service is required")
	errMeasurementUniformRequired  = errors.New("measurement service: uniform item service is required")
	errMeasurementSupplyRequired   = errors.New("measurement service: supply item service is required")
	errMeasurementSessionsRequired = errors.New("measurement service: session service is required")
	errMeasurementSubmitRequired   = errors.New("measurement service: order submitter is required")
	errMeasurementConfirmRequired  = errors.New("measurement service: order confirmer is required")
	errMeasurementClockRequired    = errors.New("measurement service: clock is required")
)

// ErrMeasurementInvalidInput indicates the caller supplied invalid input.
var ErrMeasurementInvalidInput = errors.New("measurement service: invalid input")

// ErrMeasurementInvalidState indicates the requested transition is not permitted
// from the session's current state.
var ErrMeasurementInvalidState = errors.New("measurement service: invalid state transition")

// ErrMeasurementBusy indicates a submission or confirmation is already in
// flight for the session; at most one may be outstanding.
var ErrMeasurementBusy = errors.New("measurement service: submission in flight")

// ErrMeasurementSignatureRequired indicates the confirm call carried a blank signature.
var ErrMeasurementSignatureRequired = errors.New("measurement service: signature is required")

// genericSubmissionMessage is shown when a collaborator fails without a
// server-provided message of its own.
const genericSubmissionMessage = "submission failed"

// MeasurementServiceDeps wires the engine's collaborating services and ports.
type MeasurementServiceDeps struct {
	Catalog   CatalogService
	Uniforms  UniformItemService
	Supplies  SupplyItemService
	Sessions  SessionService
	Submitter OrderSubmitter
	Confirmer OrderConfirmer
	Exporter  ExportJobPublisher
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

type measurementService struct {
	catalog   CatalogService
	uniforms  UniformItemService
	supplies  SupplyItemService
	sessions  SessionService
	submitter OrderSubmitter
	confirmer OrderConfirmer
	exporter  ExportJobPublisher
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewMeasurementService constructs a MeasurementService enforcing dependency validation.
// The export publisher is optional; without one, confirmation skips the export job.
func NewMeasurementService(deps MeasurementServiceDeps) (MeasurementService, error) {
	if deps.Catalog == nil {
		return nil, errMeasurementCatalogRequired
	}
	if deps.Uniforms == nil {
		return nil, errMeasurementUniformRequired
	}
	if deps.Supplies == nil {
		return nil, errMeasurementSupplyRequired
	}
	if deps.Sessions == nil {
		return nil, errMeasurementSessionsRequired
	}
	if deps.Submitter == nil {
		return nil, errMeasurementSubmitRequired
	}
	if deps.Confirmer == nil {
		return nil, errMeasurementConfirmRequired
	}
	if deps.Clock == nil {
		return nil, errMeasurementClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	service := &measurementService{
		catalog:   deps.Catalog,
		uniforms:  deps.Uniforms,
		supplies:  deps.Supplies,
		sessions:  deps.Sessions,
		submitter: deps.Submitter,
		confirmer: deps.Confirmer,
		exporter:  deps.Exporter,
		now:       func() time.Time { return deps.Clock().UTC() },
		logger:    logger,
	}
	return service, nil
}

// BeginSession loads the student's measurement data and seeds a session: from
// a fresh snapshot when one exists, from catalog defaults otherwise. New-mode
// sessions start configuring; edit and readonly sessions start measurement-complete.
func (s *measurementService) BeginSession(ctx context.Context, cmd BeginSessionCommand) (*MeasurementSession, error) {
	ctx, span := observability.StartSpan(ctx, "measurement.begin_session")
	var beginErr error
	defer func() { observability.EndSpan(span, beginErr) }()

	studentID := strings.TrimSpace(cmd.StudentID)
	if studentID == "" || !domain.KnownSessionMode(cmd.Mode) {
		beginErr = ErrMeasurementInvalidInput
		return nil, beginErr
	}

	measurement, err := s.catalog.LoadStudentMeasurement(ctx, studentID)
	if err != nil {
		beginErr = err
		return nil, beginErr
	}

	session := &MeasurementSession{
		StudentID:     studentID,
		Student:       measurement.Data.Student,
		Mode:          cmd.Mode,
		State:         initialState(cmd.Mode),
		OrderID:       cmd.OrderID,
		Catalog:       measurement.Catalog,
		SupplyCatalog: measurement.Supplies,
		SupplyCounts:  domain.ItemCountMap{},
		ActiveSeason:  domain.SeasonWinter,
		Deadline:      measurement.Deadline,
	}
	if session.OrderID == nil {
		session.OrderID = measurement.Data.OrderID
	}

	var snapshot *MeasurementSessionSnapshot
	if cmd.Mode != domain.SessionModeReadonly {
		snapshot = s.sessions.Load(ctx, studentID)
	}
	if snapshot != nil && !snapshotMatchesSession(snapshot, session) {
		// A snapshot persisted by a session of another mode (or for another
		// order) must not seed this one.
		s.logger(ctx, "measurement.snapshot_mismatch", map[string]any{
			"studentID":    studentID,
			"sessionMode":  string(session.Mode),
			"snapshotMode": string(snapshot.Mode),
		})
		snapshot = nil
	}
	if err := s.uniforms.Initialize(ctx, session, snapshot); err != nil {
		beginErr = err
		return nil, beginErr
	}
	if err := s.supplies.Initialize(ctx, session, snapshot); err != nil {
		beginErr = err
		return nil, beginErr
	}

	s.logger(ctx, "measurement.session_started", map[string]any{
		"studentID": studentID,
		"mode":      string(cmd.Mode),
		"resumed":   snapshot != nil,
	})
	return session, nil
}

// SetActiveSeason switches the session's season tab and persists a snapshot.
func (s *measurementService) SetActiveSeason(ctx context.Context, session *MeasurementSession, season Season) error {
	if session == nil || !domain.KnownSeason(season) {
		return ErrMeasurementInvalidInput
	}
	session.ActiveSeason = season
	s.persist(ctx, session)
	return nil
}

func (s *measurementService) AddUniformItem(ctx context.Context, session *MeasurementSession, itemID string, season Season) error {
	return s.afterMutation(ctx, session, s.uniforms.AddItem(ctx, session, itemID, season))
}

func (s *measurementService) RemoveUniformItem(ctx context.Context, session *MeasurementSession, instanceID string) error {
	return s.afterMutation(ctx, session, s.uniforms.RemoveItem(ctx, session, instanceID))
}

func (s *measurementService) UpdateUniformSize(ctx context.Context, session *MeasurementSession, instanceID string, size string) error {
	return s.afterMutation(ctx, session, s.uniforms.UpdateSize(ctx, session, instanceID, size))
}

func (s *measurementService) UpdateUniformCustomization(ctx context.Context, session *MeasurementSession, instanceID string, text string) error {
	return s.afterMutation(ctx, session, s.uniforms.UpdateCustomization(ctx, session, instanceID, text))
}

func (s *measurementService) AdjustUniformCount(ctx context.Context, session *MeasurementSession, instanceID string, delta int) error {
	return s.afterMutation(ctx, session, s.uniforms.AdjustPurchaseCount(ctx, session, instanceID, delta))
}

func (s *measurementService) UniformOwnedTotal(session *MeasurementSession, itemID string, season Season) int {
	return s.uniforms.OwnedTotal(session, itemID, season)
}

func (s *measurementService) AddSupplyItem(ctx context.Context, session *MeasurementSession, baseInstanceID string) error {
	return s.afterMutation(ctx, session, s.supplies.AddSameItem(ctx, session, baseInstanceID))
}

func (s *measurementService) RemoveSupplyItem(ctx context.Context, session *MeasurementSession, instanceID string) error {
	return s.afterMutation(ctx, session, s.supplies.RemoveItem(ctx, session, instanceID))
}

func (s *measurementService) UpdateSupplyCategory(ctx context.Context, session *MeasurementSession, instanceID string, category string) error {
	return s.afterMutation(ctx, session, s.supplies.UpdateCategory(ctx, session, instanceID, category))
}

func (s *measurementService) UpdateSupplySize(ctx context.Context, session *MeasurementSession, instanceID string, size string) error {
	return s.afterMutation(ctx, session, s.supplies.UpdateSize(ctx, session, instanceID, size))
}

func (s *measurementService) AdjustSupplyCount(ctx context.Context, session *MeasurementSession, instanceID string, delta int) error {
	return s.afterMutation(ctx, session, s.supplies.AdjustCount(ctx, session, instanceID, delta))
}

// Complete drives configuring to measurement-complete. Missing mandatory
// customizations are reported without transitioning unless the command bypasses
// them; the payload is then submitted (or, in edit mode, used to update the
// existing order) and the state advances only on a successful response.
func (s *measurementService) Complete(ctx context.Context, session *MeasurementSession, cmd CompleteCommand) (CompleteResult, error) {
	ctx, span := observability.StartSpan(ctx, "measurement.complete")
	var completeErr error
	defer func() { observability.EndSpan(span, completeErr) }()

	if session == nil {
		completeErr = ErrMeasurementInvalidInput
		return CompleteResult{}, completeErr
	}
	if err := s.guardTransition(session, domain.SessionStateMeasurementComplete); err != nil {
		completeErr = err
		return CompleteResult{}, completeErr
	}

	missing := MissingCustomizations(session.UniformItems)
	if len(missing) > 0 && !cmd.Bypass {
		return CompleteResult{MissingCustomizations: missing}, nil
	}

	if session.SubmissionInFlight {
		completeErr = ErrMeasurementBusy
		return CompleteResult{}, completeErr
	}
	session.SubmissionInFlight = true
	defer func() { session.SubmissionInFlight = false }()

	payload := BuildSubmissionPayload(session)
	submitCmd := SubmitOrderCommand{StudentID: session.StudentID, Payload: payload}

	var orderID *string
	switch session.Mode {
	case domain.SessionModeEdit:
		if session.OrderID == nil || strings.TrimSpace(*session.OrderID) == "" {
			completeErr = ErrMeasurementInvalidInput
			return CompleteResult{}, completeErr
		}
		if err := s.submitter.UpdateOrder(ctx, *session.OrderID, submitCmd); err != nil {
			completeErr = wrapSubmissionError(err)
			s.logger(ctx, "measurement.update_failed", map[string]any{
				"studentID": session.StudentID,
				"orderID":   *session.OrderID,
				"error":     err.Error(),
			})
			return CompleteResult{MissingCustomizations: missing}, completeErr
		}
		orderID = session.OrderID
	default:
		result, err := s.submitter.SubmitOrder(ctx, submitCmd)
		if err != nil {
			completeErr = wrapSubmissionError(err)
			s.logger(ctx, "measurement.submit_failed", map[string]any{
				"studentID": session.StudentID,
				"error":     err.Error(),
			})
			return CompleteResult{MissingCustomizations: missing}, completeErr
		}
		if id := strings.TrimSpace(result.OrderID); id != "" {
			orderID = &id
		}
	}

	session.State = domain.SessionStateMeasurementComplete
	if orderID != nil {
		session.OrderID = orderID
	}
	s.persist(ctx, session)
	s.logger(ctx, "measurement.completed", map[string]any{
		"studentID": session.StudentID,
		"bypassed":  cmd.Bypass && len(missing) > 0,
	})
	return CompleteResult{
		Submitted:             true,
		MissingCustomizations: missing,
		Payload:               payload,
		OrderID:               session.OrderID,
	}, nil
}

// Reopen returns a measurement-complete session to configuring. Unconditional
// and lossless: line items remain as configured.
func (s *measurementService) Reopen(ctx context.Context, session *MeasurementSession) error {
	if session == nil {
		return ErrMeasurementInvalidInput
	}
	if session.ReadOnly() {
		return ErrSessionReadOnly
	}
	if !domain.CanTransition(session.State, domain.SessionStateConfiguring) {
		return ErrMeasurementInvalidState
	}
	session.State = domain.SessionStateConfiguring
	s.persist(ctx, session)
	return nil
}

// Confirm finalizes a measurement-complete session with the operator's
// signature. On success the session reaches the terminal confirmed state, the
// snapshot is cleared, and new-mode sessions additionally publish the
// measurement-sheet export job.
func (s *measurementService) Confirm(ctx context.Context, session *MeasurementSession, cmd ConfirmCommand) (ConfirmResult, error) {
	ctx, span := observability.StartSpan(ctx, "measurement.confirm")
	var confirmErr error
	defer func() { observability.EndSpan(span, confirmErr) }()

	if session == nil {
		confirmErr = ErrMeasurementInvalidInput
		return ConfirmResult{}, confirmErr
	}
	if err := s.guardTransition(session, domain.SessionStateConfirmed); err != nil {
		confirmErr = err
		return ConfirmResult{}, confirmErr
	}
	if strings.TrimSpace(cmd.Signature) == "" {
		confirmErr = ErrMeasurementSignatureRequired
		return ConfirmResult{}, confirmErr
	}

	if session.SubmissionInFlight {
		confirmErr = ErrMeasurementBusy
		return ConfirmResult{}, confirmErr
	}
	session.SubmissionInFlight = true
	defer func() { session.SubmissionInFlight = false }()

	orderID := ""
	if session.OrderID != nil {
		orderID = *session.OrderID
	}
	payload := BuildSubmissionPayload(session)
	result, err := s.confirmer.ConfirmOrder(ctx, ConfirmOrderCommand{
		StudentID: session.StudentID,
		OrderID:   orderID,
		Signature: cmd.Signature,
		Payload:   payload,
	})
	if err != nil {
		confirmErr = wrapSubmissionError(err)
		s.logger(ctx, "measurement.confirm_failed", map[string]any{
			"studentID": session.StudentID,
			"error":     err.Error(),
		})
		return ConfirmResult{}, confirmErr
	}

	session.State = domain.SessionStateConfirmed

	exportJobID := ""
	if session.Mode == domain.SessionModeNew && s.exporter != nil {
		// The server already confirmed; an export failure is logged, never
		// rolled back into the session state.
		jobID, err := s.exporter.PublishExportJob(ctx, MeasurementExportMessage{
			OrderID:        orderID,
			ConfirmationID: result.ConfirmationID,
			StudentID:      session.StudentID,
			StudentName:    session.Student.Name,
			School:         session.Student.School,
			UniformItems:   payload.UniformItems,
			SupplyItems:    payload.SupplyItems,
			ConfirmedAt:    s.now(),
		})
		if err != nil {
			s.logger(ctx, "measurement.export_publish_failed", map[string]any{
				"studentID": session.StudentID,
				"error":     err.Error(),
			})
		} else {
			exportJobID = jobID
		}
	}

	s.sessions.Clear(ctx, session.StudentID)
	if cmd.OnSuccess != nil {
		cmd.OnSuccess()
	}
	s.logger(ctx, "measurement.confirmed", map[string]any{
		"studentID":      session.StudentID,
		"confirmationID": result.ConfirmationID,
	})
	return ConfirmResult{ConfirmationID: result.ConfirmationID, ExportJobID: exportJobID}, nil
}

// Discard abandons the session and removes its stored snapshot.
func (s *measurementService) Discard(ctx context.Context, session *MeasurementSession) {
	if session == nil {
		return
	}
	s.sessions.Clear(ctx, session.StudentID)
}

// BuildSubmissionPayload derives the order submission shape from the session's
// line items. Blank uniform customizations are recorded as a single space;
// supply lines are included only with a resolved backend product id and a
// positive count.
func BuildSubmissionPayload(session *MeasurementSession) OrderSubmissionPayload {
	payload := OrderSubmissionPayload{
		UniformItems: make([]UniformOrderItem, 0, len(session.UniformItems)),
		SupplyItems:  make([]SupplyOrderItem, 0, len(session.SupplyItems)),
	}

	for _, item := range session.UniformItems {
		customization := item.Customization
		if strings.TrimSpace(customization) == "" {
			customization = " "
		}
		payload.UniformItems = append(payload.UniformItems, UniformOrderItem{
			ItemID:        item.ProductID,
			Name:          item.Name,
			Season:        item.Season,
			SelectedSize:  item.Size,
			Customization: customization,
			PurchaseCount: item.PurchaseCount,
		})
	}

	for _, item := range session.SupplyItems {
		count := session.SupplyCounts[item.InstanceID]
		if item.ProductID == nil || count <= 0 {
			continue
		}
		payload.SupplyItems = append(payload.SupplyItems, SupplyOrderItem{
			ItemID:        *item.ProductID,
			Name:          item.Name,
			SelectedSize:  item.Size,
			PurchaseCount: count,
		})
	}
	return payload
}

// afterMutation persists a snapshot after a successful store mutation.
func (s *measurementService) afterMutation(ctx context.Context, session *MeasurementSession, err error) error {
	if err != nil {
		return err
	}
	s.persist(ctx, session)
	return nil
}

// persist writes a best-effort snapshot. Readonly sessions never write, and
// confirmed sessions have already cleared their snapshot.
func (s *measurementService) persist(ctx context.Context, session *MeasurementSession) {
	if session == nil || session.ReadOnly() || session.State == domain.SessionStateConfirmed {
		return
	}
	s.sessions.Save(ctx, session)
}

func (s *measurementService) guardTransition(session *MeasurementSession, to SessionState) error {
	if session.ReadOnly() {
		return ErrSessionReadOnly
	}
	if session.Locked(s.now()) && to == domain.SessionStateMeasurementComplete {
		return ErrSessionLocked
	}
	if !domain.CanTransition(session.State, to) {
		return ErrMeasurementInvalidState
	}
	return nil
}

// snapshotMatchesSession reports whether a stored snapshot belongs to the
// session being opened: same mode, and for edit sessions the same order.
func snapshotMatchesSession(snapshot *MeasurementSessionSnapshot, session *MeasurementSession) bool {
	if snapshot.Mode != session.Mode {
		return false
	}
	if session.Mode == domain.SessionModeEdit {
		if snapshot.OrderID == nil || session.OrderID == nil {
			return false
		}
		return *snapshot.OrderID == *session.OrderID
	}
	return true
}

func initialState(mode SessionMode) SessionState {
	if mode == domain.SessionModeNew {
		return domain.SessionStateConfiguring
	}
	return domain.SessionStateMeasurementComplete
}

// wrapSubmissionError surfaces a collaborator's message verbatim when it
// already carries one, otherwise wraps with the generic submission message so
// raw transport errors never reach the operator.
func wrapSubmissionError(err error) error {
	var submission *SubmissionError
	if errors.As(err, &submission) {
		return submission
	}
	return &SubmissionError{Message: genericSubmissionMessage, Err: err}
}
