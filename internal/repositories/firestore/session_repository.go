package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/uniformfit/measure/internal/domain"
	pfirestore "github.com/uniformfit/measure/internal/platform/firestore"
)

const defaultSessionCollection = "measurement_sessions"

// SessionSnapshotRepository persists measurement session snapshots in Firestore,
// one document per student.
type SessionSnapshotRepository struct {
	base *pfirestore.BaseRepository[sessionDocument]
}

// NewSessionSnapshotRepository constructs a Firestore-backed snapshot repository.
func NewSessionSnapshotRepository(provider *pfirestore.Provider, collection string) (*SessionSnapshotRepository, error) {
	if provider == nil {
		return nil, errors.New("session repository requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultSessionCollection
	}
	return &SessionSnapshotRepository{
		base: pfirestore.NewBaseRepository[sessionDocument](provider, collection),
	}, nil
}

type sessionDocument struct {
	StudentID    string                `firestore:"studentId"`
	Mode         string                `firestore:"mode"`
	OrderID      *string               `firestore:"orderId,omitempty"`
	UniformItems []uniformItemDocument `firestore:"uniformItems"`
	SupplyItems  []supplyItemDocument  `firestore:"supplyItems"`
	SupplyCounts map[string]int        `firestore:"supplyCounts"`
	ActiveSeason string                `firestore:"activeSeason"`
	CapturedAt   time.Time             `firestore:"capturedAt"`
}

type uniformItemDocument struct {
	InstanceID            string `firestore:"instanceId"`
	ItemID                string `firestore:"itemId"`
	ProductID             *int64 `firestore:"productId,omitempty"`
	Name                  string `firestore:"name"`
	Season                string `firestore:"season"`
	Size                  string `firestore:"size"`
	Customization         string `firestore:"customization"`
	PurchaseCount         int    `firestore:"purchaseCount"`
	FreeQuantity          int    `firestore:"freeQuantity"`
	UnitPrice             int64  `firestore:"unitPrice"`
	CustomizationRequired bool   `firestore:"customizationRequired"`
}

type supplyItemDocument struct {
	InstanceID string `firestore:"instanceId"`
	ItemID     string `firestore:"itemId"`
	ProductID  *int64 `firestore:"productId,omitempty"`
	Name       string `firestore:"name"`
	Category   string `firestore:"category"`
	Season     string `firestore:"season"`
	Size       string `firestore:"size"`
}

// Save upserts the snapshot document keyed by student id.
func (r *SessionSnapshotRepository) Save(ctx context.Context, snapshot domain.MeasurementSessionSnapshot) error {
	if r == nil || r.base == nil {
		return errors.New("session repository not initialised")
	}
	studentID := strings.TrimSpace(snapshot.StudentID)
	if studentID == "" {
		return errors.New("session repository: student id is required")
	}
	_, err := r.base.Set(ctx, studentID, encodeSessionDocument(snapshot))
	return err
}

// Find loads the snapshot for the student. Missing documents surface as a
// RepositoryError with IsNotFound.
func (r *SessionSnapshotRepository) Find(ctx context.Context, studentID string) (domain.MeasurementSessionSnapshot, error) {
	if r == nil || r.base == nil {
		return domain.MeasurementSessionSnapshot{}, errors.New("session repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(studentID))
	if err != nil {
		return domain.MeasurementSessionSnapshot{}, err
	}
	return decodeSessionDocument(doc.Data), nil
}

// Delete removes the snapshot for the student. Deleting a missing snapshot is not an error.
func (r *SessionSnapshotRepository) Delete(ctx context.Context, studentID string) error {
	if r == nil || r.base == nil {
		return errors.New("session repository not initialised")
	}
	return r.base.Delete(ctx, strings.TrimSpace(studentID))
}

// DeleteAll removes every stored snapshot.
func (r *SessionSnapshotRepository) DeleteAll(ctx context.Context) error {
	if r == nil || r.base == nil {
		return errors.New("session repository not initialised")
	}
	return r.base.DeleteAll(ctx)
}

func encodeSessionDocument(snapshot domain.MeasurementSessionSnapshot) sessionDocument {
	doc := sessionDocument{
		StudentID:    strings.TrimSpace(snapshot.StudentID),
		Mode:         string(snapshot.Mode),
		OrderID:      snapshot.OrderID,
		UniformItems: make([]uniformItemDocument, 0, len(snapshot.UniformItems)),
		SupplyItems:  make([]supplyItemDocument, 0, len(snapshot.SupplyItems)),
		SupplyCounts: map[string]int{},
		ActiveSeason: string(snapshot.ActiveSeason),
		CapturedAt:   snapshot.CapturedAt.UTC(),
	}
	for _, item := range snapshot.UniformItems {
		doc.UniformItems = append(doc.UniformItems, uniformItemDocument{
			InstanceID:            item.InstanceID,
			ItemID:                item.ItemID,
			ProductID:             item.ProductID,
			Name:                  item.Name,
			Season:                string(item.Season),
			Size:                  item.Size,
			Customization:         item.Customization,
			PurchaseCount:         item.PurchaseCount,
			FreeQuantity:          item.FreeQuantity,
			UnitPrice:             item.UnitPrice,
			CustomizationRequired: item.CustomizationRequired,
		})
	}
	for _, item := range snapshot.SupplyItems {
		doc.SupplyItems = append(doc.SupplyItems, supplyItemDocument{
			InstanceID: item.InstanceID,
			ItemID:     item.ItemID,
			ProductID:  item.ProductID,
			Name:       item.Name,
			Category:   item.Category,
			Season:     string(item.Season),
			Size:       item.Size,
		})
	}
	for id, count := range snapshot.SupplyCounts {
		doc.SupplyCounts[id] = count
	}
	return doc
}

func decodeSessionDocument(doc sessionDocument) domain.MeasurementSessionSnapshot {
	snapshot := domain.MeasurementSessionSnapshot{
		StudentID:    doc.StudentID,
		Mode:         domain.SessionMode(doc.Mode),
		OrderID:      doc.OrderID,
		UniformItems: make([]domain.UniformLineItem, 0, len(doc.UniformItems)),
		SupplyItems:  make([]domain.SupplyLineItem, 0, len(doc.SupplyItems)),
		SupplyCounts: domain.ItemCountMap{},
		ActiveSeason: domain.Season(doc.ActiveSeason),
		CapturedAt:   doc.CapturedAt,
	}
	for _, item := range doc.UniformItems {
		snapshot.UniformItems = append(snapshot.UniformItems, domain.UniformLineItem{
			InstanceID:            item.InstanceID,
			ItemID:                item.ItemID,
			ProductID:             item.ProductID,
			Name:                  item.Name,
			Season:                domain.Season(item.Season),
			Size:                  item.Size,
			Customization:         item.Customization,
			PurchaseCount:         item.PurchaseCount,
			FreeQuantity:          item.FreeQuantity,
			UnitPrice:             item.UnitPrice,
			CustomizationRequired: item.CustomizationRequired,
		})
	}
	for _, item := range doc.SupplyItems {
		snapshot.SupplyItems = append(snapshot.SupplyItems, domain.SupplyLineItem{
			InstanceID: item.InstanceID,
			ItemID:     item.ItemID,
			ProductID:  item.ProductID,
			Name:       item.Name,
			Category:   item.Category,
			Season:     domain.Season(item.Season),
			Size:       item.Size,
		})
	}
	for id, count := range doc.SupplyCounts {
		snapshot.SupplyCounts[id] = count
	}
	return snapshot
}
