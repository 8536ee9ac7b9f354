package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	domain "github.com/uniformfit/measure/internal/domain"
)

func newTestCatalogService(t *testing.T, repo *stubMeasurementDataRepository) CatalogService {
	t.Helper()
	location, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		Clock:      fixedClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		Location:   location,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing catalog service: %v", err)
	}
	return service
}

func TestCatalogServiceNormalizeBucketsBySeason(t *testing.T) {
	service := newTestCatalogService(t, &stubMeasurementDataRepository{})

	raw := []domain.RawCatalogProduct{
		{ItemID: "jacket-w", Name: "자켓", Season: domain.SeasonWinter, Sizes: []string{"95", "100"}, RecommendedSize: "100"},
		{ItemID: "shirt-s", Name: "셔츠", Season: domain.SeasonSummer, RecommendedSize: "95"},
		{ItemID: "tie", Name: "넥타이", Season: domain.SeasonAll},
		{ItemID: "ghost", Name: "유령", Season: Season("spring")},
	}

	catalog := service.Normalize(context.Background(), raw)

	if len(catalog.Winter) != 1 || len(catalog.Summer) != 1 || len(catalog.All) != 1 {
		t.Fatalf("unexpected bucket sizes: winter=%d summer=%d all=%d", len(catalog.Winter), len(catalog.Summer), len(catalog.All))
	}
	if got := catalog.Winter[0].AvailableSizes; !reflect.DeepEqual(got, []string{"95", "100"}) {
		t.Fatalf("expected explicit sizes preserved, got %v", got)
	}
	if got := catalog.Summer[0].AvailableSizes; !reflect.DeepEqual(got, []string{"95"}) {
		t.Fatalf("expected recommended-size singleton, got %v", got)
	}
	if got := catalog.All[0].AvailableSizes; got != nil {
		t.Fatalf("expected no sizes for entry without size data, got %v", got)
	}
}

func TestCatalogServiceNormalizeExplicitlyEmptySizesUseLadder(t *testing.T) {
	service := newTestCatalogService(t, &stubMeasurementDataRepository{})

	catalog := service.Normalize(context.Background(), []domain.RawCatalogProduct{
		{ItemID: "pants-w", Name: "바지", Season: domain.SeasonWinter, Sizes: []string{}},
	})

	if len(catalog.Winter) != 1 {
		t.Fatalf("expected one winter entry, got %d", len(catalog.Winter))
	}
	sizes := catalog.Winter[0].AvailableSizes
	if len(sizes) == 0 || sizes[0] != "85" || sizes[len(sizes)-1] != "120" {
		t.Fatalf("expected default size ladder, got %v", sizes)
	}
}

func TestCatalogServiceNormalizeIsIdempotent(t *testing.T) {
	service := newTestCatalogService(t, &stubMeasurementDataRepository{})

	raw := []domain.RawCatalogProduct{
		{ItemID: "skirt-w", Name: "치마", Season: domain.SeasonWinter, SelectableWith: []string{"바지"}},
		{ItemID: "pants-w", Name: "바지", Season: domain.SeasonWinter, SelectableWith: []string{"치마"}},
	}

	first := service.Normalize(context.Background(), raw)
	second := service.Normalize(context.Background(), raw)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected idempotent normalization")
	}
}

func TestCatalogServiceNormalizeResolvesLinkageWithinSeason(t *testing.T) {
	service := newTestCatalogService(t, &stubMeasurementDataRepository{})

	raw := []domain.RawCatalogProduct{
		{ItemID: "skirt-w", Name: "치마", Season: domain.SeasonWinter, SelectableWith: []string{"바지"}},
		{ItemID: "pants-w", Name: "바지", Season: domain.SeasonWinter, SelectableWith: []string{"치마"}},
		{ItemID: "pants-s", Name: "바지", Season: domain.SeasonSummer},
	}

	catalog := service.Normalize(context.Background(), raw)

	skirt, ok := catalog.FindEntry("skirt-w", domain.SeasonWinter)
	if !ok {
		t.Fatalf("expected winter skirt entry")
	}
	if !reflect.DeepEqual(skirt.LinkedItemIDs, []string{"pants-w"}) {
		t.Fatalf("expected skirt linked to winter pants, got %v", skirt.LinkedItemIDs)
	}
	summerPants, ok := catalog.FindEntry("pants-s", domain.SeasonSummer)
	if !ok {
		t.Fatalf("expected summer pants entry")
	}
	if len(summerPants.LinkedItemIDs) != 0 {
		t.Fatalf("expected no cross-season linkage, got %v", summerPants.LinkedItemIDs)
	}
}

func TestCatalogServiceNormalizeLogsAsymmetricLinkage(t *testing.T) {
	var events []string
	repo := &stubMeasurementDataRepository{}
	service, err := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		Clock:      fixedClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	catalog := service.Normalize(context.Background(), []domain.RawCatalogProduct{
		{ItemID: "skirt-w", Name: "치마", Season: domain.SeasonWinter, SelectableWith: []string{"바지"}},
		{ItemID: "pants-w", Name: "바지", Season: domain.SeasonWinter},
	})

	skirt, _ := catalog.FindEntry("skirt-w", domain.SeasonWinter)
	if !reflect.DeepEqual(skirt.LinkedItemIDs, []string{"pants-w"}) {
		t.Fatalf("expected asymmetric link kept, got %v", skirt.LinkedItemIDs)
	}
	found := false
	for _, event := range events {
		if event == "catalog.linkage_asymmetric" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected asymmetric linkage event, got %v", events)
	}
}

func TestCatalogServiceNormalizeSupplyDefaultSize(t *testing.T) {
	service := newTestCatalogService(t, &stubMeasurementDataRepository{})

	entries := service.NormalizeSupply([]domain.RawSupplyProduct{
		{ItemID: "socks", Name: "양말", Sizes: []string{"free"}, ExpectedQuantity: 3},
		{ItemID: "bag", Name: "가방", Sizes: []string{"S", "M"}, ExpectedQuantity: 1},
		{ItemID: "belt", Name: "벨트", Sizes: []string{"free"}, ExpectedQuantity: 0},
	})

	if entries[0].DefaultSize != "free" {
		t.Fatalf("expected single-size default pre-filled, got %q", entries[0].DefaultSize)
	}
	if entries[1].DefaultSize != "" {
		t.Fatalf("expected multi-size entry unselected, got %q", entries[1].DefaultSize)
	}
	if entries[2].DefaultSize != "" {
		t.Fatalf("expected zero-expected entry unselected, got %q", entries[2].DefaultSize)
	}
}

func TestCatalogServiceLoadStudentMeasurementFiltersGenderAndParsesDeadline(t *testing.T) {
	repo := &stubMeasurementDataRepository{
		fetchFunc: func(ctx context.Context, studentID string) (domain.MeasurementData, error) {
			if studentID != "student-1" {
				t.Fatalf("unexpected student id %q", studentID)
			}
			return domain.MeasurementData{
				Student:      domain.StudentProfile{ID: "student-1", Name: "김민준", Gender: domain.GenderMale},
				DeadlineText: "마감: 2025년 12월 31일",
				UniformCatalog: []domain.RawCatalogProduct{
					{ItemID: "jacket", Name: "자켓", Season: domain.SeasonWinter},
					{ItemID: "skirt", Name: "치마", Season: domain.SeasonWinter, Gender: domain.GenderFemale},
				},
			}, nil
		},
	}
	service := newTestCatalogService(t, repo)

	measurement, err := service.LoadStudentMeasurement(context.Background(), " student-1 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(measurement.Catalog.Winter) != 1 || measurement.Catalog.Winter[0].ItemID != "jacket" {
		t.Fatalf("expected gender-filtered catalog, got %+v", measurement.Catalog.Winter)
	}
	if measurement.Deadline == nil {
		t.Fatalf("expected parsed deadline")
	}
	if got := measurement.Deadline.Year(); got != 2025 {
		t.Fatalf("expected deadline year 2025, got %d", got)
	}
}

func TestCatalogServiceLoadStudentMeasurementTranslatesErrors(t *testing.T) {
	notFound := newTestCatalogService(t, &stubMeasurementDataRepository{
		fetchFunc: func(ctx context.Context, studentID string) (domain.MeasurementData, error) {
			return domain.MeasurementData{}, &repositoryErrorStub{notFound: true}
		},
	})
	if _, err := notFound.LoadStudentMeasurement(context.Background(), "student-1"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}

	unavailable := newTestCatalogService(t, &stubMeasurementDataRepository{
		fetchFunc: func(ctx context.Context, studentID string) (domain.MeasurementData, error) {
			return domain.MeasurementData{}, errors.New("backend down")
		},
	})
	if _, err := unavailable.LoadStudentMeasurement(context.Background(), "student-1"); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}

	if _, err := notFound.LoadStudentMeasurement(context.Background(), "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}
