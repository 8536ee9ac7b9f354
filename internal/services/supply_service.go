package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/uniformfit/measure/internal/domain"
)

var errSupplyClockRequired = errors.New("supply service: clock is required")

// ErrSupplyInvalidInput indicates the caller supplied invalid input.
var ErrSupplyInvalidInput = errors.New("supply service: invalid input")

// ErrSupplyItemNotFound indicates no supply line carries the given instance id.
var ErrSupplyItemNotFound = errors.New("supply service: line item not found")

// SupplyItemServiceDeps wires ambient dependencies for supply line-item operations.
type SupplyItemServiceDeps struct {
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type supplyItemService struct {
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewSupplyItemService constructs a SupplyItemService enforcing dependency validation.
func NewSupplyItemService(deps SupplyItemServiceDeps) (SupplyItemService, error) {
	if deps.Clock == nil {
		return nil, errSupplyClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	service := &supplyItemService{
		now:    func() time.Time { return deps.Clock().UTC() },
		newID:  idGen,
		logger: logger,
	}
	return service, nil
}

// Initialize seeds the session's supply items, once. Snapshot restores
// regenerate instance ids and remap the count map onto the new ids; otherwise
// every supply catalog entry gets one line with its conditional default size
// and a count of max(0, expected quantity).
func (s *supplyItemService) Initialize(ctx context.Context, session *MeasurementSession, snapshot *MeasurementSessionSnapshot) error {
	if session == nil {
		return ErrSupplyInvalidInput
	}
	if session.SuppliesInitialized {
		return nil
	}
	session.SuppliesInitialized = true

	if snapshot != nil {
		items := make([]SupplyLineItem, 0, len(snapshot.SupplyItems))
		counts := make(domain.ItemCountMap, len(snapshot.SupplyItems))
		for _, item := range snapshot.SupplyItems {
			restored := item
			restored.InstanceID = s.newID()
			count := snapshot.SupplyCounts[item.InstanceID]
			if count < 0 {
				count = 0
			}
			counts[restored.InstanceID] = count
			items = append(items, restored)
		}
		session.SupplyItems = items
		session.SupplyCounts = counts
		s.logger(ctx, "supply.restored", map[string]any{
			"studentID": session.StudentID,
			"items":     len(items),
		})
		return nil
	}

	items := make([]SupplyLineItem, 0, len(session.SupplyCatalog))
	counts := make(domain.ItemCountMap, len(session.SupplyCatalog))
	for _, entry := range session.SupplyCatalog {
		item := SupplyLineItem{
			InstanceID: s.newID(),
			ItemID:     entry.ItemID,
			ProductID:  entry.ProductID,
			Name:       entry.Name,
			Category:   entry.Category,
			Season:     entry.Season,
			Size:       entry.DefaultSize,
		}
		count := entry.ExpectedQuantity
		if count < 0 {
			count = 0
		}
		items = append(items, item)
		counts[item.InstanceID] = count
	}
	session.SupplyItems = items
	session.SupplyCounts = counts
	return nil
}

// AddSameItem duplicates an existing supply line under a fresh instance id.
// The duplicate's size resets to the catalog entry's conditional default and
// its count starts at zero.
func (s *supplyItemService) AddSameItem(ctx context.Context, session *MeasurementSession, baseInstanceID string) error {
	if err := s.guardMutation(session); err != nil {
		return err
	}

	target := strings.TrimSpace(baseInstanceID)
	if target == "" {
		return ErrSupplyInvalidInput
	}

	for _, item := range session.SupplyItems {
		if item.InstanceID != target {
			continue
		}
		duplicate := item
		duplicate.InstanceID = s.newID()
		duplicate.Size = s.defaultSizeFor(session, item.ItemID)
		session.SupplyItems = append(cloneSupplyItems(session.SupplyItems), duplicate)
		counts := session.SupplyCounts.Clone()
		counts[duplicate.InstanceID] = 0
		session.SupplyCounts = counts
		return nil
	}
	return ErrSupplyItemNotFound
}

// RemoveItem deletes one supply line and its count map entry.
func (s *supplyItemService) RemoveItem(ctx context.Context, session *MeasurementSession, instanceID string) error {
	if err := s.guardMutation(session); err != nil {
		return err
	}

	target := strings.TrimSpace(instanceID)
	if target == "" {
		return ErrSupplyInvalidInput
	}

	items := cloneSupplyItems(session.SupplyItems)
	for i, item := range items {
		if item.InstanceID == target {
			session.SupplyItems = append(items[:i], items[i+1:]...)
			counts := session.SupplyCounts.Clone()
			delete(counts, target)
			session.SupplyCounts = counts
			return nil
		}
	}
	return ErrSupplyItemNotFound
}

// UpdateCategory replaces the category label of one supply line.
func (s *supplyItemService) UpdateCategory(ctx context.Context, session *MeasurementSession, instanceID string, category string) error {
	return s.mutateItem(session, instanceID, func(item *SupplyLineItem) {
		item.Category = strings.TrimSpace(category)
	})
}

// UpdateSize replaces the selected size of one supply line.
func (s *supplyItemService) UpdateSize(ctx context.Context, session *MeasurementSession, instanceID string, size string) error {
	return s.mutateItem(session, instanceID, func(item *SupplyLineItem) {
		item.Size = strings.TrimSpace(size)
	})
}

// AdjustCount adds delta to the line's purchase count, floored at zero.
func (s *supplyItemService) AdjustCount(ctx context.Context, session *MeasurementSession, instanceID string, delta int) error {
	if err := s.guardMutation(session); err != nil {
		return err
	}

	target := strings.TrimSpace(instanceID)
	if target == "" {
		return ErrSupplyInvalidInput
	}
	if !supplyItemExists(session.SupplyItems, target) {
		return ErrSupplyItemNotFound
	}

	counts := session.SupplyCounts.Clone()
	next := counts[target] + delta
	if next < 0 {
		next = 0
	}
	counts[target] = next
	session.SupplyCounts = counts
	return nil
}

func (s *supplyItemService) mutateItem(session *MeasurementSession, instanceID string, apply func(*SupplyLineItem)) error {
	if err := s.guardMutation(session); err != nil {
		return err
	}

	target := strings.TrimSpace(instanceID)
	if target == "" {
		return ErrSupplyInvalidInput
	}

	items := cloneSupplyItems(session.SupplyItems)
	for i := range items {
		if items[i].InstanceID == target {
			apply(&items[i])
			session.SupplyItems = items
			return nil
		}
	}
	return ErrSupplyItemNotFound
}

func (s *supplyItemService) guardMutation(session *MeasurementSession) error {
	if session == nil {
		return ErrSupplyInvalidInput
	}
	if session.ReadOnly() {
		return ErrSessionReadOnly
	}
	if session.Locked(s.now()) {
		return ErrSessionLocked
	}
	return nil
}

func (s *supplyItemService) defaultSizeFor(session *MeasurementSession, itemID string) string {
	for _, entry := range session.SupplyCatalog {
		if entry.ItemID == itemID {
			return entry.DefaultSize
		}
	}
	return ""
}

func supplyItemExists(items []SupplyLineItem, instanceID string) bool {
	for _, item := range items {
		if item.InstanceID == instanceID {
			return true
		}
	}
	return false
}

func cloneSupplyItems(items []SupplyLineItem) []SupplyLineItem {
	return append([]SupplyLineItem(nil), items...)
}
