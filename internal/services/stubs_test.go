package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/uniformfit/measure/internal/domain"
)

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string       { return "repository error stub" }
func (e *repositoryErrorStub) IsNotFound() bool    { return e.notFound }
func (e *repositoryErrorStub) IsConflict() bool    { return e.conflict }
func (e *repositoryErrorStub) IsUnavailable() bool { return e.unavailable }

type stubMeasurementDataRepository struct {
	fetchFunc func(ctx context.Context, studentID string) (domain.MeasurementData, error)
}

func (s *stubMeasurementDataRepository) FetchMeasurementData(ctx context.Context, studentID string) (domain.MeasurementData, error) {
	if s.fetchFunc != nil {
		return s.fetchFunc(ctx, studentID)
	}
	return domain.MeasurementData{}, &repositoryErrorStub{notFound: true}
}

type stubSnapshotRepository struct {
	saveFunc      func(ctx context.Context, snapshot domain.MeasurementSessionSnapshot) error
	findFunc      func(ctx context.Context, studentID string) (domain.MeasurementSessionSnapshot, error)
	deleteFunc    func(ctx context.Context, studentID string) error
	deleteAllFunc func(ctx context.Context) error
}

func (s *stubSnapshotRepository) Save(ctx context.Context, snapshot domain.MeasurementSessionSnapshot) error {
	if s.saveFunc != nil {
		return s.saveFunc(ctx, snapshot)
	}
	return nil
}

func (s *stubSnapshotRepository) Find(ctx context.Context, studentID string) (domain.MeasurementSessionSnapshot, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, studentID)
	}
	return domain.MeasurementSessionSnapshot{}, &repositoryErrorStub{notFound: true}
}

func (s *stubSnapshotRepository) Delete(ctx context.Context, studentID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, studentID)
	}
	return nil
}

func (s *stubSnapshotRepository) DeleteAll(ctx context.Context) error {
	if s.deleteAllFunc != nil {
		return s.deleteAllFunc(ctx)
	}
	return nil
}

type stubOrderSubmitter struct {
	submitFunc func(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error)
	updateFunc func(ctx context.Context, orderID string, cmd SubmitOrderCommand) error
}

func (s *stubOrderSubmitter) SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error) {
	if s.submitFunc != nil {
		return s.submitFunc(ctx, cmd)
	}
	return SubmitOrderResult{OrderID: "order-1"}, nil
}

func (s *stubOrderSubmitter) UpdateOrder(ctx context.Context, orderID string, cmd SubmitOrderCommand) error {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, orderID, cmd)
	}
	return nil
}

type stubOrderConfirmer struct {
	confirmFunc func(ctx context.Context, cmd ConfirmOrderCommand) (ConfirmOrderResult, error)
}

func (s *stubOrderConfirmer) ConfirmOrder(ctx context.Context, cmd ConfirmOrderCommand) (ConfirmOrderResult, error) {
	if s.confirmFunc != nil {
		return s.confirmFunc(ctx, cmd)
	}
	return ConfirmOrderResult{ConfirmationID: "confirm-1"}, nil
}

type stubExportPublisher struct {
	publishFunc func(ctx context.Context, message MeasurementExportMessage) (string, error)
}

func (s *stubExportPublisher) PublishExportJob(ctx context.Context, message MeasurementExportMessage) (string, error) {
	if s.publishFunc != nil {
		return s.publishFunc(ctx, message)
	}
	return "job-1", nil
}

// sequentialIDs returns a deterministic id generator for tests.
func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func int64Ptr(v int64) *int64 {
	return &v
}

func strPtr(v string) *string {
	return &v
}
