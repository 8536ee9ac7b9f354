package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/uniformfit/measure/internal/domain"
)

var errUniformClockRequired = errors.New("uniform service: clock is required")

// ErrUniformInvalidInput indicates the caller supplied invalid input.
var ErrUniformInvalidInput = errors.New("uniform service: invalid input")

// ErrUniformItemNotFound indicates no line item carries the given instance id.
var ErrUniformItemNotFound = errors.New("uniform service: line item not found")

// UniformItemServiceDeps wires ambient dependencies for uniform line-item operations.
type UniformItemServiceDeps struct {
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
	Sanitizer   *bluemonday.Policy
}

type uniformItemService struct {
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	sanitize *bluemonday.Policy
}

// NewUniformItemService constructs a UniformItemService enforcing dependency validation.
func NewUniformItemService(deps UniformItemServiceDeps) (UniformItemService, error) {
	if deps.Clock == nil {
		return nil, errUniformClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = bluemonday.StrictPolicy()
	}

	service := &uniformItemService{
		now:      func() time.Time { return deps.Clock().UTC() },
		newID:    idGen,
		logger:   logger,
		sanitize: sanitize,
	}
	return service, nil
}

// Initialize seeds the session's uniform items, once. A fresh snapshot is
// restored verbatim with regenerated instance ids; otherwise every catalog
// entry gets exactly one default line item with purchase count max(0, total-free).
// Re-running after the first call is a no-op.
func (s *uniformItemService) Initialize(ctx context.Context, session *MeasurementSession, snapshot *MeasurementSessionSnapshot) error {
	// Seeding runs for readonly and deadline-locked sessions too; the gates
	// apply to operator mutations, not to displaying existing state.
	if session == nil {
		return ErrUniformInvalidInput
	}
	if session.UniformsInitialized {
		return nil
	}
	session.UniformsInitialized = true

	if snapshot != nil {
		items := make([]UniformLineItem, 0, len(snapshot.UniformItems))
		for _, item := range snapshot.UniformItems {
			restored := item
			restored.InstanceID = s.newID()
			if restored.PurchaseCount < 0 {
				restored.PurchaseCount = 0
			}
			items = append(items, restored)
		}
		session.UniformItems = items
		if domain.KnownSeason(snapshot.ActiveSeason) {
			session.ActiveSeason = snapshot.ActiveSeason
		}
		s.logger(ctx, "uniform.restored", map[string]any{
			"studentID": session.StudentID,
			"items":     len(items),
		})
		return nil
	}

	entries := session.Catalog.AllEntries()
	items := make([]UniformLineItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, s.defaultLineItem(entry))
	}
	session.UniformItems = items
	return nil
}

// AddItem appends a fresh line item for the catalog entry with purchase count
// one. An unknown catalog entry is a silent no-op.
func (s *uniformItemService) AddItem(ctx context.Context, session *MeasurementSession, itemID string, season Season) error {
	if err := s.guardMutation(session); err != nil {
		return err
	}
	if !session.UniformsInitialized {
		return ErrSessionNotInitialized
	}

	entry, ok := session.Catalog.FindEntry(itemID, season)
	if !ok {
		s.logger(ctx, "uniform.add_unknown_entry", map[string]any{
			"studentID": session.StudentID,
			"itemID":    strings.TrimSpace(itemID),
			"season":    string(season),
		})
		return nil
	}

	item := UniformLineItem{
		InstanceID:            s.newID(),
		ItemID:                entry.ItemID,
		ProductID:             entry.ProductID,
		Name:                  entry.Name,
		Season:                entry.Season,
		Size:                  addItemSize(entry),
		PurchaseCount:         1,
		FreeQuantity:          entry.FreeQuantity,
		UnitPrice:             entry.UnitPrice,
		CustomizationRequired: entry.CustomizationRequired,
	}
	session.UniformItems = append(cloneUniformItems(session.UniformItems), item)
	return nil
}

// RemoveItem deletes the line item with the given instance id. Other instances
// of the same catalog entry are untouched.
func (s *uniformItemService) RemoveItem(ctx context.Context, session *MeasurementSession, instanceID string) error {
	if err := s.guardMutation(session); err != nil {
		return err
	}

	target := strings.TrimSpace(instanceID)
	if target == "" {
		return ErrUniformInvalidInput
	}

	items := cloneUniformItems(session.UniformItems)
	for i, item := range items {
		if item.InstanceID == target {
			session.UniformItems = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return ErrUniformItemNotFound
}

// UpdateSize replaces the selected size of one line item.
func (s *uniformItemService) UpdateSize(ctx context.Context, session *MeasurementSession, instanceID string, size string) error {
	return s.mutateItem(session, instanceID, func(item *UniformLineItem) {
		item.Size = strings.TrimSpace(size)
	})
}

// UpdateCustomization replaces the free-text customization of one line item.
// The text is sanitized; markup never reaches the submission payload.
func (s *uniformItemService) UpdateCustomization(ctx context.Context, session *MeasurementSession, instanceID string, text string) error {
	clean := s.sanitize.Sanitize(text)
	return s.mutateItem(session, instanceID, func(item *UniformLineItem) {
		item.Customization = clean
	})
}

// AdjustPurchaseCount adds delta to the item's purchase count, floored at zero.
func (s *uniformItemService) AdjustPurchaseCount(ctx context.Context, session *MeasurementSession, instanceID string, delta int) error {
	return s.mutateItem(session, instanceID, func(item *UniformLineItem) {
		next := item.PurchaseCount + delta
		if next < 0 {
			next = 0
		}
		item.PurchaseCount = next
	})
}

// OwnedTotal re-derives the displayed total owned count for a catalog entry:
// its free quantity, plus purchase counts across its own instances, plus the
// purchase counts of instances of linked entries in the same season. The value
// is never cached because any sibling count can change it.
func (s *uniformItemService) OwnedTotal(session *MeasurementSession, itemID string, season Season) int {
	if session == nil {
		return 0
	}
	entry, ok := session.Catalog.FindEntry(itemID, season)
	if !ok {
		return 0
	}

	total := entry.FreeQuantity
	for _, item := range session.UniformItems {
		if item.Season != season {
			continue
		}
		if item.ItemID == entry.ItemID || containsString(entry.LinkedItemIDs, item.ItemID) {
			total += item.PurchaseCount
		}
	}
	return total
}

func (s *uniformItemService) defaultLineItem(entry ProductCatalogEntry) UniformLineItem {
	count := entry.TotalQuantity - entry.FreeQuantity
	if count < 0 {
		count = 0
	}
	return UniformLineItem{
		InstanceID:            s.newID(),
		ItemID:                entry.ItemID,
		ProductID:             entry.ProductID,
		Name:                  entry.Name,
		Season:                entry.Season,
		Size:                  addItemSize(entry),
		PurchaseCount:         count,
		FreeQuantity:          entry.FreeQuantity,
		UnitPrice:             entry.UnitPrice,
		CustomizationRequired: entry.CustomizationRequired,
	}
}

func (s *uniformItemService) mutateItem(session *MeasurementSession, instanceID string, apply func(*UniformLineItem)) error {
	if err := s.guardMutation(session); err != nil {
		return err
	}

	target := strings.TrimSpace(instanceID)
	if target == "" {
		return ErrUniformInvalidInput
	}

	items := cloneUniformItems(session.UniformItems)
	for i := range items {
		if items[i].InstanceID == target {
			apply(&items[i])
			session.UniformItems = items
			return nil
		}
	}
	return ErrUniformItemNotFound
}

func (s *uniformItemService) guardMutation(session *MeasurementSession) error {
	if session == nil {
		return ErrUniformInvalidInput
	}
	if session.ReadOnly() {
		return ErrSessionReadOnly
	}
	if session.Locked(s.now()) {
		return ErrSessionLocked
	}
	return nil
}

// addItemSize picks the size for a freshly added item: recommended size,
// then the first available size, then "0".
func addItemSize(entry ProductCatalogEntry) string {
	if entry.RecommendedSize != "" {
		return entry.RecommendedSize
	}
	if len(entry.AvailableSizes) > 0 {
		return entry.AvailableSizes[0]
	}
	return "0"
}

func cloneUniformItems(items []UniformLineItem) []UniformLineItem {
	return append([]UniformLineItem(nil), items...)
}
