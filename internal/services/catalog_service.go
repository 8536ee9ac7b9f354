package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/uniformfit/measure/internal/domain"
	"github.com/uniformfit/measure/internal/platform/kdate"
	"github.com/uniformfit/measure/internal/repositories"
)

var (
	errCatalogRepositoryRequired = errors.New("catalog service: measurement data repository is required")
	errCatalogClockRequired      = errors.New("catalog service: clock is required")
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates no measurement data exists for the student.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogUnavailable indicates measurement data could not be loaded.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// defaultUniformSizeLadder seeds available sizes for uniform entries whose
// source row carries no size information at all.
var defaultUniformSizeLadder = []string{"85", "90", "95", "100", "105", "110", "115", "120"}

// CatalogServiceDeps wires the measurement data source and ambient dependencies.
type CatalogServiceDeps struct {
	Repository repositories.MeasurementDataRepository
	Clock      func() time.Time
	Location   *time.Location
	Logger     func(context.Context, string, map[string]any)
}

type catalogService struct {
	repo     repositories.MeasurementDataRepository
	now      func() time.Time
	location *time.Location
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	location := deps.Location
	if location == nil {
		location = time.Local
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	service := &catalogService{
		repo:     deps.Repository,
		now:      func() time.Time { return deps.Clock().UTC() },
		location: location,
		logger:   logger,
	}
	return service, nil
}

// Normalize converts the raw per-season recommended products into season
// buckets with resolved size lists and id-based linkage sets. The transform is
// pure and idempotent; rows with an unknown season are dropped with a log event.
func (s *catalogService) Normalize(ctx context.Context, raw []domain.RawCatalogProduct) SeasonCatalog {
	catalog := SeasonCatalog{}
	buckets := map[Season][]ProductCatalogEntry{}

	for _, product := range raw {
		season := Season(strings.TrimSpace(string(product.Season)))
		if !domain.KnownSeason(season) {
			s.logger(ctx, "catalog.unknown_season", map[string]any{
				"itemID": product.ItemID,
				"season": string(product.Season),
			})
			continue
		}

		entry := ProductCatalogEntry{
			ItemID:                strings.TrimSpace(product.ItemID),
			ProductID:             product.ProductID,
			Name:                  strings.TrimSpace(product.Name),
			Season:                season,
			RecommendedSize:       strings.TrimSpace(product.RecommendedSize),
			UnitPrice:             product.UnitPrice,
			FreeQuantity:          product.FreeQuantity,
			TotalQuantity:         product.TotalQuantity,
			LinkedNames:           trimmedNames(product.SelectableWith),
			Gender:                product.Gender,
			CustomizationRequired: product.CustomizationRequired,
		}
		entry.AvailableSizes = resolveAvailableSizes(product)

		buckets[season] = append(buckets[season], entry)
	}

	for season, entries := range buckets {
		resolveLinkage(ctx, entries, s.logger)
		switch season {
		case domain.SeasonWinter:
			catalog.Winter = entries
		case domain.SeasonSummer:
			catalog.Summer = entries
		case domain.SeasonAll:
			catalog.All = entries
		}
	}
	return catalog
}

// NormalizeSupply converts the raw supply catalog, pre-filling the default
// size when the entry offers exactly one size and expects at least one unit.
func (s *catalogService) NormalizeSupply(raw []domain.RawSupplyProduct) []SupplyCatalogEntry {
	entries := make([]SupplyCatalogEntry, 0, len(raw))
	for _, product := range raw {
		entry := SupplyCatalogEntry{
			ItemID:           strings.TrimSpace(product.ItemID),
			ProductID:        product.ProductID,
			Name:             strings.TrimSpace(product.Name),
			Category:         strings.TrimSpace(product.Category),
			Season:           Season(strings.TrimSpace(string(product.Season))),
			AvailableSizes:   trimmedNames(product.Sizes),
			ExpectedQuantity: product.ExpectedQuantity,
			UnitPrice:        product.UnitPrice,
		}
		if len(entry.AvailableSizes) == 1 && entry.ExpectedQuantity >= 1 {
			entry.DefaultSize = entry.AvailableSizes[0]
		}
		entries = append(entries, entry)
	}
	return entries
}

// LoadStudentMeasurement fetches the student's measurement data and returns
// normalized catalogs filtered to the student's gender, plus the parsed
// deadline. A fetch failure constructs no partial state.
func (s *catalogService) LoadStudentMeasurement(ctx context.Context, studentID string) (StudentMeasurement, error) {
	if s == nil || s.repo == nil {
		return StudentMeasurement{}, ErrCatalogUnavailable
	}

	sid := strings.TrimSpace(studentID)
	if sid == "" {
		return StudentMeasurement{}, ErrCatalogInvalidInput
	}

	data, err := s.repo.FetchMeasurementData(ctx, sid)
	if err != nil {
		if isRepoNotFound(err) {
			return StudentMeasurement{}, ErrCatalogNotFound
		}
		s.logger(ctx, "catalog.fetch_failed", map[string]any{
			"studentID": sid,
			"error":     err.Error(),
		})
		return StudentMeasurement{}, ErrCatalogUnavailable
	}

	raw := filterByGender(data.UniformCatalog, data.Student.Gender)
	measurement := StudentMeasurement{
		Data:     data,
		Catalog:  s.Normalize(ctx, raw),
		Supplies: s.NormalizeSupply(data.SupplyCatalog),
	}
	if deadline, ok := kdate.ParseDeadline(data.DeadlineText, s.location); ok {
		measurement.Deadline = &deadline
	}
	return measurement, nil
}

// resolveAvailableSizes applies the size resolution rules: explicit sizes win;
// a row that carries an explicitly empty size list falls back to the standard
// ladder; a row with no size list at all uses the recommended size as a
// singleton, or stays empty.
func resolveAvailableSizes(product domain.RawCatalogProduct) []string {
	if sizes := trimmedNames(product.Sizes); len(sizes) > 0 {
		return sizes
	}
	if product.Sizes != nil {
		return append([]string(nil), defaultUniformSizeLadder...)
	}
	if recommended := strings.TrimSpace(product.RecommendedSize); recommended != "" {
		return []string{recommended}
	}
	return nil
}

// resolveLinkage fills LinkedItemIDs from LinkedNames within one season bucket.
// Linkage can be asymmetric in source data; asymmetry is logged, not repaired.
func resolveLinkage(ctx context.Context, entries []ProductCatalogEntry, logger func(context.Context, string, map[string]any)) {
	byName := make(map[string]int, len(entries))
	for i, entry := range entries {
		byName[entry.Name] = i
	}

	for i := range entries {
		entries[i].LinkedItemIDs = nil
		for _, name := range entries[i].LinkedNames {
			j, ok := byName[name]
			if !ok || j == i {
				continue
			}
			entries[i].LinkedItemIDs = append(entries[i].LinkedItemIDs, entries[j].ItemID)
		}
	}

	for i := range entries {
		for _, linkedID := range entries[i].LinkedItemIDs {
			j := indexByItemID(entries, linkedID)
			if j < 0 {
				continue
			}
			if !containsString(entries[j].LinkedItemIDs, entries[i].ItemID) {
				logger(ctx, "catalog.linkage_asymmetric", map[string]any{
					"itemID":       entries[i].ItemID,
					"linkedItemID": linkedID,
					"season":       string(entries[i].Season),
				})
			}
		}
	}
}

func filterByGender(raw []domain.RawCatalogProduct, student domain.Gender) []domain.RawCatalogProduct {
	out := make([]domain.RawCatalogProduct, 0, len(raw))
	for _, product := range raw {
		if product.Gender.AppliesTo(student) {
			out = append(out, product)
		}
	}
	return out
}

func trimmedNames(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func indexByItemID(entries []ProductCatalogEntry, itemID string) int {
	for i, entry := range entries {
		if entry.ItemID == itemID {
			return i
		}
	}
	return -1
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
