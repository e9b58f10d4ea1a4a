package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseHistoryFiltersDefaults(t *testing.T) {
	f, err := ParseHistoryFilters("  ", "", "", "", "", DefaultCatalog)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f != DefaultHistoryFilters() {
		t.Fatalf("expected defaults, got %+v", f)
	}
}

func TestParseHistoryFiltersRejectsUnknownValues(t *testing.T) {
	cases := []struct {
		name                                 string
		topic, difficulty, sortBy, dateRange string
	}{
		{name: "topic", topic: "astrology"},
		{name: "difficulty", difficulty: "insane"},
		{name: "sort", sortBy: "random"},
		{name: "range", dateRange: "last-decade"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseHistoryFilters("", tc.topic, tc.difficulty, tc.sortBy, tc.dateRange, DefaultCatalog)
			if !errors.Is(err, ErrInvalidFilter) {
				t.Fatalf("expected ErrInvalidFilter, got %v", err)
			}
		})
	}
}

func TestDateRangeBoundaries(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	// Thursday
	now := time.Date(2026, time.October, 15, 17, 30, 0, 0, loc)

	cases := map[DateRange]time.Time{
		RangeToday:     time.Date(2026, time.October, 15, 0, 0, 0, 0, loc),
		RangeThisWeek:  time.Date(2026, time.October, 11, 0, 0, 0, 0, loc),
		RangeThisMonth: time.Date(2026, time.October, 1, 0, 0, 0, 0, loc),
		RangeThisYear:  time.Date(2026, time.January, 1, 0, 0, 0, 0, loc),
	}
	for r, want := range cases {
		got, ok := r.Since(now)
		if !ok || !got.Equal(want) {
			t.Fatalf("%s: expected %v, got %v (ok=%v)", r, want, got, ok)
		}
	}
	if _, ok := RangeAllTime.Since(now); ok {
		t.Fatalf("all-time must not produce a bound")
	}
}

func TestThisWeekOnSundayIsToday(t *testing.T) {
	now := time.Date(2026, time.October, 11, 9, 0, 0, 0, time.UTC)
	got, _ := RangeThisWeek.Since(now)
	if !got.Equal(time.Date(2026, time.October, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected sunday midnight, got %v", got)
	}
}

func TestCriteriaSearchUsesOrSemantics(t *testing.T) {
	now := time.Now()
	f := DefaultHistoryFilters()
	f.Search = "kubernetes"
	c := f.Criteria("u1", now)

	byCategory := QuizRecord{UserID: "u1", CreatedAt: now, QuizResult: QuizResult{Topic: "cloud-native", Category: "Kubernetes"}}
	byTopic := QuizRecord{UserID: "u1", CreatedAt: now, QuizResult: QuizResult{Topic: "kubernetes-basics", Category: "Pods"}}
	neither := QuizRecord{UserID: "u1", CreatedAt: now, QuizResult: QuizResult{Topic: "linux", Category: "Kernel"}}

	if !c.Matches(byCategory) || !c.Matches(byTopic) {
		t.Fatalf("expected topic or category match")
	}
	if c.Matches(neither) {
		t.Fatalf("expected no match")
	}
}

func TestCriteriaScopesToUser(t *testing.T) {
	c := DefaultHistoryFilters().Criteria("u1", time.Now())
	if c.Matches(QuizRecord{UserID: "u2"}) {
		t.Fatalf("records of other users must never match")
	}
}

func TestCriteriaMissingTimestampNeverMatchesRange(t *testing.T) {
	now := time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)
	f := DefaultHistoryFilters()
	f.DateRange = RangeThisYear
	c := f.Criteria("u1", now)

	if c.Matches(QuizRecord{UserID: "u1"}) {
		t.Fatalf("missing timestamp matched a date range")
	}
	future := QuizRecord{UserID: "u1", CreatedAt: now.AddDate(1, 0, 0)}
	if !c.Matches(future) {
		t.Fatalf("future records have no upper bound and must match")
	}
	if !DefaultHistoryFilters().Criteria("u1", now).Matches(QuizRecord{UserID: "u1"}) {
		t.Fatalf("all-time must match records without timestamps")
	}
}

func TestSortRecordsPushesMissingTimestampsLast(t *testing.T) {
	base := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	records := []QuizRecord{
		{ID: "missing"},
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(time.Hour)},
	}

	SortRecords(records, SortNewest)
	assertOrder(t, records, "new", "old", "missing")

	SortRecords(records, SortOldest)
	assertOrder(t, records, "old", "new", "missing")
}

func TestSortRecordsByScore(t *testing.T) {
	records := []QuizRecord{
		{ID: "a", QuizResult: QuizResult{Score: 5}},
		{ID: "b", QuizResult: QuizResult{Score: 9}},
		{ID: "c", QuizResult: QuizResult{Score: 7}},
	}
	SortRecords(records, SortHighest)
	assertOrder(t, records, "b", "c", "a")
	SortRecords(records, SortLowest)
	assertOrder(t, records, "a", "c", "b")
}

func TestAggregateRecordsSumOfSums(t *testing.T) {
	records := []QuizRecord{
		{QuizResult: QuizResult{Score: 5, TotalQuestions: 10, TimeTaken: 60}},
		{QuizResult: QuizResult{Score: 8, TotalQuestions: 10, TimeTaken: 90}},
		{QuizResult: QuizResult{Score: 10, TotalQuestions: 10, TimeTaken: 120}},
	}
	agg := AggregateRecords(records)
	if agg.TotalCount != 3 || agg.TotalQuestionsSum != 30 {
		t.Fatalf("unexpected counts: %+v", agg)
	}
	if math.Abs(agg.AverageScore-76.6666666) > 1e-4 {
		t.Fatalf("expected 76.67%%, got %v", agg.AverageScore)
	}
	if agg.AverageTimeSeconds != 90 {
		t.Fatalf("expected 90s average, got %v", agg.AverageTimeSeconds)
	}
}

func TestAggregateRecordsEmptyIsZero(t *testing.T) {
	agg := AggregateRecords(nil)
	if agg != (HistoryAggregates{}) {
		t.Fatalf("expected zero aggregates, got %+v", agg)
	}
}

func TestFormatClock(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{{0, "00:00"}, {59.4, "00:59"}, {90, "01:30"}, {605.6, "10:06"}, {math.NaN(), "00:00"}}
	for _, tc := range cases {
		if got := FormatClock(tc.in); got != tc.want {
			t.Fatalf("FormatClock(%v)=%s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, size, want int }{{0, 10, 1}, {10, 10, 1}, {11, 10, 2}, {25, 10, 3}}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.size); got != tc.want {
			t.Fatalf("TotalPages(%d,%d)=%d, want %d", tc.total, tc.size, got, tc.want)
		}
	}
}

func assertOrder(t *testing.T, records []QuizRecord, ids ...string) {
	t.Helper()
	for i, id := range ids {
		if records[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, records[i].ID)
		}
	}
}
