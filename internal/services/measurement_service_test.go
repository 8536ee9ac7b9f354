package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/uniformfit/measure/internal/domain"
)

type measurementFixture struct {
	service   MeasurementService
	snapshots *stubSnapshotRepository
	submitter *stubOrderSubmitter
	confirmer *stubOrderConfirmer
	exporter  *stubExportPublisher
	data      *stubMeasurementDataRepository
}

func newMeasurementFixture(t *testing.T, now time.Time) *measurementFixture {
	t.Helper()

	fixture := &measurementFixture{
		snapshots: &stubSnapshotRepository{},
		submitter: &stubOrderSubmitter{},
		confirmer: &stubOrderConfirmer{},
		exporter:  &stubExportPublisher{},
		data: &stubMeasurementDataRepository{
			fetchFunc: func(ctx context.Context, studentID string) (domain.MeasurementData, error) {
				return domain.MeasurementData{
					Student:      domain.StudentProfile{ID: studentID, Name: "김민준", School: "한빛중학교"},
					DeadlineText: "2025년 12월 31일",
					UniformCatalog: []domain.RawCatalogProduct{
						{ItemID: "jacket-w", ProductID: int64Ptr(11), Name: "자켓", Season: domain.SeasonWinter, RecommendedSize: "100", FreeQuantity: 1, TotalQuantity: 2, CustomizationRequired: true},
					},
					SupplyCatalog: []domain.RawSupplyProduct{
						{ItemID: "socks", ProductID: int64Ptr(21), Name: "양말", Sizes: []string{"free"}, ExpectedQuantity: 2},
						{ItemID: "nameless", Name: "미등록", Sizes: []string{"free"}, ExpectedQuantity: 1},
					},
				}, nil
			},
		},
	}

	clock := fixedClock(now)
	catalog, err := NewCatalogService(CatalogServiceDeps{Repository: fixture.data, Clock: clock, Location: time.UTC})
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	uniforms, err := NewUniformItemService(UniformItemServiceDeps{Clock: clock, IDGenerator: sequentialIDs("uniform")})
	if err != nil {
		t.Fatalf("uniform service: %v", err)
	}
	supplies, err := NewSupplyItemService(SupplyItemServiceDeps{Clock: clock, IDGenerator: sequentialIDs("supply")})
	if err != nil {
		t.Fatalf("supply service: %v", err)
	}
	sessions, err := NewSessionService(SessionServiceDeps{Repository: fixture.snapshots, Clock: clock})
	if err != nil {
		t.Fatalf("session service: %v", err)
	}

	fixture.service, err = NewMeasurementService(MeasurementServiceDeps{
		Catalog:   catalog,
		Uniforms:  uniforms,
		Supplies:  supplies,
		Sessions:  sessions,
		Submitter: fixture.submitter,
		Confirmer: fixture.confirmer,
		Exporter:  fixture.exporter,
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("measurement service: %v", err)
	}
	return fixture
}

func TestMeasurementServiceBeginSessionSeedsDefaults(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if session.State != domain.SessionStateConfiguring {
		t.Fatalf("expected new session configuring, got %q", session.State)
	}
	if !session.Initialized() {
		t.Fatalf("expected initialized session")
	}
	if len(session.UniformItems) != 1 || session.UniformItems[0].PurchaseCount != 1 {
		t.Fatalf("expected seeded uniform defaults, got %+v", session.UniformItems)
	}
	if len(session.SupplyItems) != 2 {
		t.Fatalf("expected seeded supply defaults, got %d", len(session.SupplyItems))
	}
	if session.Deadline == nil || session.Deadline.Year() != 2025 {
		t.Fatalf("expected parsed deadline, got %v", session.Deadline)
	}
}

func TestMeasurementServiceBeginSessionModesStartInMeasurementComplete(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)

	for _, mode := range []domain.SessionMode{domain.SessionModeEdit, domain.SessionModeReadonly} {
		session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: mode, OrderID: strPtr("order-9")})
		if err != nil {
			t.Fatalf("unexpected error for mode %q: %v", mode, err)
		}
		if session.State != domain.SessionStateMeasurementComplete {
			t.Fatalf("expected %q session to start measurement complete, got %q", mode, session.State)
		}
	}
}

func TestMeasurementServiceBeginSessionResumesFreshSnapshot(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	fixture.snapshots.findFunc = func(ctx context.Context, studentID string) (domain.MeasurementSessionSnapshot, error) {
		return domain.MeasurementSessionSnapshot{
			StudentID: studentID,
			Mode:      domain.SessionModeNew,
			UniformItems: []domain.UniformLineItem{
				{InstanceID: "old-1", ItemID: "jacket-w", Name: "자켓", Season: domain.SeasonWinter, Size: "105", PurchaseCount: 4},
			},
			SupplyItems:  []domain.SupplyLineItem{{InstanceID: "old-s", ItemID: "socks", Name: "양말", Size: "free"}},
			SupplyCounts: domain.ItemCountMap{"old-s": 2},
			ActiveSeason: domain.SeasonSummer,
			CapturedAt:   now.Add(-time.Hour),
		}, nil
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(session.UniformItems) != 1 || session.UniformItems[0].PurchaseCount != 4 {
		t.Fatalf("expected snapshot items restored, got %+v", session.UniformItems)
	}
	if session.UniformItems[0].InstanceID == "old-1" {
		t.Fatalf("expected regenerated instance ids")
	}
	if session.ActiveSeason != domain.SeasonSummer {
		t.Fatalf("expected season tab restored, got %q", session.ActiveSeason)
	}
}

func TestMeasurementServiceBeginSessionIgnoresSnapshotFromAnotherMode(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	fixture.snapshots.findFunc = func(ctx context.Context, studentID string) (domain.MeasurementSessionSnapshot, error) {
		return domain.MeasurementSessionSnapshot{
			StudentID: studentID,
			Mode:      domain.SessionModeEdit,
			OrderID:   strPtr("order-9"),
			UniformItems: []domain.UniformLineItem{
				{InstanceID: "old-1", ItemID: "jacket-w", Name: "자켓", Season: domain.SeasonWinter, Size: "105", PurchaseCount: 6, FreeQuantity: 1},
			},
			CapturedAt: now.Add(-time.Hour),
		}, nil
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(session.UniformItems) != 1 {
		t.Fatalf("expected catalog defaults, got %+v", session.UniformItems)
	}
	if got := session.UniformItems[0].PurchaseCount; got != 1 {
		t.Fatalf("expected default purchase count 1, got %d", got)
	}
}

func TestMeasurementServiceBeginSessionResumesEditSnapshotForSameOrder(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	fixture.snapshots.findFunc = func(ctx context.Context, studentID string) (domain.MeasurementSessionSnapshot, error) {
		return domain.MeasurementSessionSnapshot{
			StudentID: studentID,
			Mode:      domain.SessionModeEdit,
			OrderID:   strPtr("order-9"),
			UniformItems: []domain.UniformLineItem{
				{InstanceID: "old-1", ItemID: "jacket-w", Name: "자켓", Season: domain.SeasonWinter, Size: "105", PurchaseCount: 6, FreeQuantity: 1},
			},
			CapturedAt: now.Add(-time.Hour),
		}, nil
	}

	same, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeEdit, OrderID: strPtr("order-9")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := same.UniformItems[0].PurchaseCount; got != 6 {
		t.Fatalf("expected edit session to resume its own snapshot, got count %d", got)
	}

	other, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeEdit, OrderID: strPtr("order-10")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := other.UniformItems[0].PurchaseCount; got != 1 {
		t.Fatalf("expected snapshot for another order to be ignored, got count %d", got)
	}
}

func TestMeasurementServiceBeginSessionFailsClosedOnCatalogError(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	fixture.data.fetchFunc = func(ctx context.Context, studentID string) (domain.MeasurementData, error) {
		return domain.MeasurementData{}, errors.New("backend down")
	}

	if _, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew}); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestMeasurementServiceCompleteReportsMissingCustomizations(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	submitted := false
	fixture.submitter.submitFunc = func(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error) {
		submitted = true
		return SubmitOrderResult{OrderID: "order-1"}, nil
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := fixture.service.Complete(context.Background(), session, CompleteCommand{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Submitted {
		t.Fatalf("expected no submission with missing customizations")
	}
	if len(result.MissingCustomizations) != 1 || result.MissingCustomizations[0] != "자켓 (winter)" {
		t.Fatalf("unexpected missing list: %v", result.MissingCustomizations)
	}
	if submitted {
		t.Fatalf("expected submitter untouched")
	}
	if session.State != domain.SessionStateConfiguring {
		t.Fatalf("expected state unchanged, got %q", session.State)
	}
}

func TestMeasurementServiceCompleteBypassSubmitsWithPlaceholder(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	var payload OrderSubmissionPayload
	fixture.submitter.submitFunc = func(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error) {
		payload = cmd.Payload
		return SubmitOrderResult{OrderID: "order-7"}, nil
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Submitted {
		t.Fatalf("expected submission")
	}
	if session.State != domain.SessionStateMeasurementComplete {
		t.Fatalf("expected measurement complete, got %q", session.State)
	}
	if session.OrderID == nil || *session.OrderID != "order-7" {
		t.Fatalf("expected assigned order id, got %v", session.OrderID)
	}

	if len(payload.UniformItems) != 1 {
		t.Fatalf("expected one uniform payload item, got %d", len(payload.UniformItems))
	}
	if payload.UniformItems[0].Customization != " " {
		t.Fatalf("expected single-space placeholder, got %q", payload.UniformItems[0].Customization)
	}
	// The unregistered supply line has no backend product id and is excluded.
	if len(payload.SupplyItems) != 1 || payload.SupplyItems[0].ItemID != 21 || payload.SupplyItems[0].PurchaseCount != 2 {
		t.Fatalf("unexpected supply payload: %+v", payload.SupplyItems)
	}
}

func TestMeasurementServiceCompleteFailureKeepsStateAndStores(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	fixture.submitter.submitFunc = func(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error) {
		return SubmitOrderResult{}, &SubmissionError{Message: "마감된 주문입니다"}
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	itemsBefore := len(session.UniformItems)

	_, err = fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true})
	var submission *SubmissionError
	if !errors.As(err, &submission) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if submission.Message != "마감된 주문입니다" {
		t.Fatalf("expected server message surfaced verbatim, got %q", submission.Message)
	}
	if session.State != domain.SessionStateConfiguring {
		t.Fatalf("expected rollback to configuring, got %q", session.State)
	}
	if len(session.UniformItems) != itemsBefore {
		t.Fatalf("expected stores untouched by failed submission")
	}
	if session.SubmissionInFlight {
		t.Fatalf("expected in-flight latch released")
	}
}

func TestMeasurementServiceCompleteWrapsUnknownFailuresGenerically(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	cause := errors.New("rpc error: code = Unavailable desc = connection reset")
	fixture.submitter.submitFunc = func(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error) {
		return SubmitOrderResult{}, cause
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true})
	var submission *SubmissionError
	if !errors.As(err, &submission) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
	if submission.Error() != "submission failed" {
		t.Fatalf("expected generic message for transport failures, got %q", submission.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause reachable via errors.Is")
	}
}

func TestMeasurementServiceCompleteEditModeUpdatesExistingOrder(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	updatedOrder := ""
	fixture.submitter.updateFunc = func(ctx context.Context, orderID string, cmd SubmitOrderCommand) error {
		updatedOrder = orderID
		return nil
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeEdit, OrderID: strPtr("order-9")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fixture.service.Reopen(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updatedOrder != "order-9" {
		t.Fatalf("expected update targeted at existing order, got %q", updatedOrder)
	}
}

func TestMeasurementServiceCompleteBusyLatch(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session.SubmissionInFlight = true

	if _, err := fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true}); !errors.Is(err, ErrMeasurementBusy) {
		t.Fatalf("expected ErrMeasurementBusy, got %v", err)
	}
}

func TestMeasurementServiceCompleteBlockedPastDeadline(t *testing.T) {
	// Strictly after 2025-12-31 23:59:59.999999999 UTC.
	now := time.Date(2026, 1, 1, 0, 0, 0, 1, time.UTC)
	fixture := newMeasurementFixture(t, now)

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true}); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected ErrSessionLocked, got %v", err)
	}
}

func TestMeasurementServiceReopenIsLossless(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := len(session.UniformItems)

	if err := fixture.service.Reopen(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.State != domain.SessionStateConfiguring {
		t.Fatalf("expected configuring, got %q", session.State)
	}
	if len(session.UniformItems) != items {
		t.Fatalf("expected line items preserved across reopen")
	}
	if err := fixture.service.Reopen(context.Background(), session); !errors.Is(err, ErrMeasurementInvalidState) {
		t.Fatalf("expected ErrMeasurementInvalidState from configuring, got %v", err)
	}
}

func TestMeasurementServiceConfirmRequiresSignature(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := fixture.service.Confirm(context.Background(), session, ConfirmCommand{Signature: "   "}); !errors.Is(err, ErrMeasurementSignatureRequired) {
		t.Fatalf("expected ErrMeasurementSignatureRequired, got %v", err)
	}
	if session.State != domain.SessionStateMeasurementComplete {
		t.Fatalf("expected state unchanged, got %q", session.State)
	}
}

func TestMeasurementServiceConfirmNewModePublishesExportAndClearsSnapshot(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)

	var exported *MeasurementExportMessage
	fixture.exporter.publishFunc = func(ctx context.Context, message MeasurementExportMessage) (string, error) {
		exported = &message
		return "job-42", nil
	}
	cleared := ""
	fixture.snapshots.deleteFunc = func(ctx context.Context, studentID string) error {
		cleared = studentID
		return nil
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	succeeded := false
	result, err := fixture.service.Confirm(context.Background(), session, ConfirmCommand{
		Signature: "sig-data",
		OnSuccess: func() { succeeded = true },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if session.State != domain.SessionStateConfirmed {
		t.Fatalf("expected confirmed, got %q", session.State)
	}
	if result.ConfirmationID != "confirm-1" || result.ExportJobID != "job-42" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if exported == nil {
		t.Fatalf("expected export job published")
	}
	if exported.StudentName != "김민준" || len(exported.UniformItems) != 1 {
		t.Fatalf("expected export message carrying item lists, got %+v", exported)
	}
	if cleared != "student-1" {
		t.Fatalf("expected snapshot cleared, got %q", cleared)
	}
	if !succeeded {
		t.Fatalf("expected success callback invoked")
	}
}

func TestMeasurementServiceConfirmEditModeSkipsExport(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	published := false
	fixture.exporter.publishFunc = func(ctx context.Context, message MeasurementExportMessage) (string, error) {
		published = true
		return "job-1", nil
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeEdit, OrderID: strPtr("order-9")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := fixture.service.Confirm(context.Background(), session, ConfirmCommand{Signature: "sig"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if published {
		t.Fatalf("expected no export for edit-mode confirmation")
	}
}

func TestMeasurementServiceConfirmExportFailureDoesNotRollBack(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	fixture.exporter.publishFunc = func(ctx context.Context, message MeasurementExportMessage) (string, error) {
		return "", errors.New("broker unavailable")
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := fixture.service.Confirm(context.Background(), session, ConfirmCommand{Signature: "sig"})
	if err != nil {
		t.Fatalf("expected export failure swallowed, got %v", err)
	}
	if session.State != domain.SessionStateConfirmed {
		t.Fatalf("expected confirmed despite export failure, got %q", session.State)
	}
	if result.ExportJobID != "" {
		t.Fatalf("expected empty export job id, got %q", result.ExportJobID)
	}
}

func TestMeasurementServiceConfirmFailureStaysMeasurementComplete(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	fixture.confirmer.confirmFunc = func(ctx context.Context, cmd ConfirmOrderCommand) (ConfirmOrderResult, error) {
		return ConfirmOrderResult{}, errors.New("signature rejected")
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fixture.service.Complete(context.Background(), session, CompleteCommand{Bypass: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := fixture.service.Confirm(context.Background(), session, ConfirmCommand{Signature: "sig"}); err == nil {
		t.Fatalf("expected error")
	}
	if session.State != domain.SessionStateMeasurementComplete {
		t.Fatalf("expected state preserved, got %q", session.State)
	}
	if session.SubmissionInFlight {
		t.Fatalf("expected in-flight latch released")
	}
}

func TestMeasurementServiceMutationsPersistSnapshots(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	saves := 0
	fixture.snapshots.saveFunc = func(ctx context.Context, snapshot domain.MeasurementSessionSnapshot) error {
		saves = saves + 1
		return nil
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	id := session.UniformItems[0].InstanceID
	if err := fixture.service.AdjustUniformCount(ctx, session, id, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fixture.service.SetActiveSeason(ctx, session, domain.SeasonSummer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saves != 2 {
		t.Fatalf("expected a snapshot per mutation, got %d", saves)
	}
}

func TestMeasurementServiceReadonlySessionsNeverPersist(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	fixture := newMeasurementFixture(t, now)
	saves := 0
	fixture.snapshots.saveFunc = func(ctx context.Context, snapshot domain.MeasurementSessionSnapshot) error {
		saves = saves + 1
		return nil
	}

	session, err := fixture.service.BeginSession(context.Background(), BeginSessionCommand{StudentID: "student-1", Mode: domain.SessionModeReadonly, OrderID: strPtr("order-9")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fixture.service.SetActiveSeason(context.Background(), session, domain.SeasonSummer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saves != 0 {
		t.Fatalf("expected no snapshots for readonly sessions, got %d", saves)
	}
}
