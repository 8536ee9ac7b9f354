package domain

import (
	"strings"
	"time"
)

// Season classifies catalog entries and line items into measurement tabs.
type Season string

const (
	// SeasonWinter covers winter uniform items.
	SeasonWinter Season = "winter"
	// SeasonSummer covers summer uniform items.
	SeasonSummer Season = "summer"
	// SeasonAll covers items worn year round.
	SeasonAll Season = "all"
)

// KnownSeason reports whether the value is one of the supported season buckets.
func KnownSeason(season Season) bool {
	switch season {
	case SeasonWinter, SeasonSummer, SeasonAll:
		return true
	}
	return false
}

// Gender restricts catalog entries to a subset of students.
type Gender string

const (
	// GenderAny marks entries applicable to every student.
	GenderAny Gender = ""
	// GenderMale marks entries applicable to male students.
	GenderMale Gender = "male"
	// GenderFemale marks entries applicable to female students.
	GenderFemale Gender = "female"
)

// AppliesTo reports whether an entry restricted to g is visible to a student of the given gender.
func (g Gender) AppliesTo(student Gender) bool {
	if g == GenderAny || student == GenderAny {
		return true
	}
	return g == student
}

// SessionMode distinguishes how a measurement session was opened.
type SessionMode string

const (
	// SessionModeNew starts a fresh measurement for a student without an order.
	SessionModeNew SessionMode = "new"
	// SessionModeEdit reopens an already submitted order for changes.
	SessionModeEdit SessionMode = "edit"
	// SessionModeReadonly presents a submitted order without allowing edits.
	SessionModeReadonly SessionMode = "readonly"
)

// KnownSessionMode reports whether the value is a supported session mode.
func KnownSessionMode(mode SessionMode) bool {
	switch mode {
	case SessionModeNew, SessionModeEdit, SessionModeReadonly:
		return true
	}
	return false
}

// SessionState enumerates the measurement session lifecycle.
type SessionState string

const (
	// SessionStateConfiguring indicates the operator is still editing line items.
	SessionStateConfiguring SessionState = "configuring"
	// SessionStateMeasurementComplete indicates the order was submitted and awaits a signature.
	SessionStateMeasurementComplete SessionState = "measurement_complete"
	// SessionStateConfirmed indicates the order was countersigned; terminal.
	SessionStateConfirmed SessionState = "confirmed"
)

// SessionStateTransitions lists the permitted state changes for a measurement session.
var SessionStateTransitions = map[SessionState][]SessionState{
	SessionStateConfiguring:         {SessionStateMeasurementComplete},
	SessionStateMeasurementComplete: {SessionStateConfiguring, SessionStateConfirmed},
}

// CanTransition reports whether moving from one session state to another is permitted.
func CanTransition(from, to SessionState) bool {
	for _, candidate := range SessionStateTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// RawCatalogProduct is the per-season recommended uniform product as returned by
// the measurement data collaborator, prior to normalization.
type RawCatalogProduct struct {
	ItemID                string
	ProductID             *int64
	Name                  string
	Season                Season
	Sizes                 []string
	RecommendedSize       string
	UnitPrice             int64
	FreeQuantity          int
	TotalQuantity         int
	SelectableWith        []string
	Gender                Gender
	CustomizationRequired bool
}

// RawSupplyProduct is the unnormalized supply catalog entry from the measurement data fetch.
type RawSupplyProduct struct {
	ItemID           string
	ProductID        *int64
	Name             string
	Category         string
	Season           Season
	Sizes            []string
	ExpectedQuantity int
	UnitPrice        int64
}

// ProductCatalogEntry is one sellable uniform product for a season bucket.
// Entries are immutable for the duration of an editing session.
type ProductCatalogEntry struct {
	ItemID                string
	ProductID             *int64
	Name                  string
	Season                Season
	RecommendedSize       string
	AvailableSizes        []string
	UnitPrice             int64
	FreeQuantity          int
	TotalQuantity         int
	LinkedNames           []string
	LinkedItemIDs         []string
	Gender                Gender
	CustomizationRequired bool
}

// SupplyCatalogEntry is one normalized supply product available for purchase.
type SupplyCatalogEntry struct {
	ItemID           string
	ProductID        *int64
	Name             string
	Category         string
	Season           Season
	AvailableSizes   []string
	DefaultSize      string
	ExpectedQuantity int
	UnitPrice        int64
}

// SeasonCatalog buckets normalized uniform catalog entries by season.
type SeasonCatalog struct {
	Winter []ProductCatalogEntry
	Summer []ProductCatalogEntry
	All    []ProductCatalogEntry
}

// Entries returns the bucket for the given season. Unknown seasons yield nil.
func (c SeasonCatalog) Entries(season Season) []ProductCatalogEntry {
	switch season {
	case SeasonWinter:
		return c.Winter
	case SeasonSummer:
		return c.Summer
	case SeasonAll:
		return c.All
	}
	return nil
}

// AllEntries flattens every season bucket in display order.
func (c SeasonCatalog) AllEntries() []ProductCatalogEntry {
	out := make([]ProductCatalogEntry, 0, len(c.Winter)+len(c.Summer)+len(c.All))
	out = append(out, c.Winter...)
	out = append(out, c.Summer...)
	out = append(out, c.All...)
	return out
}

// FindEntry locates a catalog entry by item id within a season bucket.
func (c SeasonCatalog) FindEntry(itemID string, season Season) (ProductCatalogEntry, bool) {
	target := strings.TrimSpace(itemID)
	for _, entry := range c.Entries(season) {
		if entry.ItemID == target {
			return entry, true
		}
	}
	return ProductCatalogEntry{}, false
}

// UniformLineItem is one concrete purchasable uniform instance configured by the operator.
// Multiple instances may share the same ItemID (e.g. two pairs of pants at
// different sizes); PurchaseCount never goes below zero.
type UniformLineItem struct {
	InstanceID            string
	ItemID                string
	ProductID             *int64
	Name                  string
	Season                Season
	Size                  string
	Customization         string
	PurchaseCount         int
	FreeQuantity          int
	UnitPrice             int64
	CustomizationRequired bool
}

// SupplyLineItem is one concrete supply purchase line. The purchase count lives
// in the session's ItemCountMap keyed by InstanceID.
type SupplyLineItem struct {
	InstanceID string
	ItemID     string
	ProductID  *int64
	Name       string
	Category   string
	Season     Season
	Size       string
}

// ItemCountMap maps a line-item instance id to its non-negative purchase count.
type ItemCountMap map[string]int

// Clone returns an independent copy of the count map.
func (m ItemCountMap) Clone() ItemCountMap {
	if m == nil {
		return ItemCountMap{}
	}
	out := make(ItemCountMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StudentProfile carries the student identity attached to a measurement session.
type StudentProfile struct {
	ID     string
	Name   string
	Gender Gender
	School string
	Grade  string
	Phone  string
}

// MeasurementData is the boundary payload returned by the measurement data fetch:
// student identity, the school deadline string, and the raw catalogs.
type MeasurementData struct {
	Student        StudentProfile
	DeadlineText   string
	UniformCatalog []RawCatalogProduct
	SupplyCatalog  []RawSupplyProduct
	OrderID        *string
}

// MeasurementSessionSnapshot is the serializable capture of an in-progress
// configuration, written on every meaningful mutation and restored at session
// start. Snapshots older than the configured TTL are discarded, never restored.
type MeasurementSessionSnapshot struct {
	StudentID    string
	Mode         SessionMode
	OrderID      *string
	UniformItems []UniformLineItem
	SupplyItems  []SupplyLineItem
	SupplyCounts ItemCountMap
	ActiveSeason Season
	CapturedAt   time.Time
}

// UniformOrderItem is the submission shape for one uniform line item.
type UniformOrderItem struct {
	ItemID        *int64 `json:"item_id"`
	Name          string `json:"name"`
	Season        Season `json:"season"`
	SelectedSize  string `json:"selected_size"`
	Customization string `json:"customization"`
	PurchaseCount int    `json:"purchase_count"`
}

// SupplyOrderItem is the submission shape for one supply line item. Only items
// with a resolved backend product id and a positive count are submitted.
type SupplyOrderItem struct {
	ItemID        int64  `json:"item_id"`
	Name          string `json:"name"`
	SelectedSize  string `json:"selected_size"`
	PurchaseCount int    `json:"purchase_count"`
}

// OrderSubmissionPayload is the derived payload consumed by the order-submission collaborator.
type OrderSubmissionPayload struct {
	UniformItems []UniformOrderItem `json:"uniform_items"`
	SupplyItems  []SupplyOrderItem  `json:"supply_items"`
}

// MeasurementSession is the owned mutable state of one editing session for one
// student. It is passed by reference into the engine services; no two sessions
// for the same student run concurrently.
type MeasurementSession struct {
	StudentID     string
	Student       StudentProfile
	Mode          SessionMode
	State         SessionState
	OrderID       *string
	Catalog       SeasonCatalog
	SupplyCatalog []SupplyCatalogEntry
	UniformItems  []UniformLineItem
	SupplyItems   []SupplyLineItem
	SupplyCounts  ItemCountMap
	ActiveSeason  Season
	// Deadline is the parsed measurement cutoff; nil means the session never locks.
	Deadline *time.Time
	// UniformsInitialized and SuppliesInitialized guard the one-shot seeding
	// of each line-item store.
	UniformsInitialized bool
	SuppliesInitialized bool
	// SubmissionInFlight latches while a submit or confirm call is outstanding,
	// enforcing at-most-once semantics for the session.
	SubmissionInFlight bool
}

// Initialized reports whether both line-item stores have been seeded.
func (s *MeasurementSession) Initialized() bool {
	return s != nil && s.UniformsInitialized && s.SuppliesInitialized
}

// ReadOnly reports whether the session forbids all mutations by mode.
func (s *MeasurementSession) ReadOnly() bool {
	return s != nil && s.Mode == SessionModeReadonly
}

// Locked reports whether the school's measurement deadline has passed at the
// given instant. Sessions without a parsed deadline never lock.
func (s *MeasurementSession) Locked(now time.Time) bool {
	if s == nil || s.Deadline == nil {
		return false
	}
	return now.After(*s.Deadline)
}

// Snapshot externalizes the session's restorable state.
func (s *MeasurementSession) Snapshot() MeasurementSessionSnapshot {
	if s == nil {
		return MeasurementSessionSnapshot{}
	}
	return MeasurementSessionSnapshot{
		StudentID:    s.StudentID,
		Mode:         s.Mode,
		OrderID:      s.OrderID,
		UniformItems: append([]UniformLineItem(nil), s.UniformItems...),
		SupplyItems:  append([]SupplyLineItem(nil), s.SupplyItems...),
		SupplyCounts: s.SupplyCounts.Clone(),
		ActiveSeason: s.ActiveSeason,
	}
}
