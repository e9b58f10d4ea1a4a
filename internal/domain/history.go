package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// AllSelector is the "no filter" sentinel used by history selectors.
const AllSelector = "all"

// SortKey orders a history page.
type SortKey string

const (
	SortNewest  SortKey = "newest"
	SortOldest  SortKey = "oldest"
	SortHighest SortKey = "highest"
	SortLowest  SortKey = "lowest"
)

// DateRange restricts history to records created since a calendar boundary.
type DateRange string

const (
	RangeAllTime   DateRange = "all-time"
	RangeToday     DateRange = "today"
	RangeThisWeek  DateRange = "this-week"
	RangeThisMonth DateRange = "this-month"
	RangeThisYear  DateRange = "this-year"
)

// HistoryFilters is the validated query shape for browsing past sessions.
// Topic and Difficulty hold either AllSelector or a concrete value.
type HistoryFilters struct {
	Search     string    `json:"search"`
	Topic      string    `json:"topic"`
	Difficulty string    `json:"difficulty"`
	Sort       SortKey   `json:"sortBy"`
	DateRange  DateRange `json:"dateRange"`
}

// DefaultHistoryFilters matches every record, newest first.
func DefaultHistoryFilters() HistoryFilters {
	return HistoryFilters{
		Topic:      AllSelector,
		Difficulty: AllSelector,
		Sort:       SortNewest,
		DateRange:  RangeAllTime,
	}
}

// ParseHistoryFilters validates raw selector values. Empty values take the defaults;
// anything outside the enumerations is rejected.
func ParseHistoryFilters(search, topic, difficulty, sortBy, dateRange string, catalog Catalog) (HistoryFilters, error) {
	f := DefaultHistoryFilters()
	f.Search = strings.TrimSpace(search)

	if topic != "" && topic != AllSelector {
		if !catalog.HasTopic(topic) {
			return HistoryFilters{}, fmt.Errorf("%w: topic %q", ErrInvalidFilter, topic)
		}
		f.Topic = topic
	}
	if difficulty != "" && difficulty != AllSelector {
		d, err := ParseDifficulty(difficulty)
		if err != nil {
			return HistoryFilters{}, err
		}
		f.Difficulty = string(d)
	}
	if sortBy != "" {
		switch s := SortKey(sortBy); s {
		case SortNewest, SortOldest, SortHighest, SortLowest:
			f.Sort = s
		default:
			return HistoryFilters{}, fmt.Errorf("%w: sort %q", ErrInvalidFilter, sortBy)
		}
	}
	if dateRange != "" {
		switch r := DateRange(dateRange); r {
		case RangeAllTime, RangeToday, RangeThisWeek, RangeThisMonth, RangeThisYear:
			f.DateRange = r
		default:
			return HistoryFilters{}, fmt.Errorf("%w: date range %q", ErrInvalidFilter, dateRange)
		}
	}
	return f, nil
}

// Since returns the inclusive lower bound of the range, computed in now's location.
// ok is false for all-time.
func (r DateRange) Since(now time.Time) (time.Time, bool) {
	y, m, d := now.Date()
	loc := now.Location()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	switch r {
	case RangeToday:
		return today, true
	case RangeThisWeek:
		return today.AddDate(0, 0, -int(today.Weekday())), true
	case RangeThisMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), true
	case RangeThisYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

// HistoryCriteria is the predicate shared by the paged and the aggregate query.
// Empty fields do not restrict.
type HistoryCriteria struct {
	UserID     string
	Difficulty string
	Topic      string
	Search     string
	Since      time.Time
}

// Criteria resolves the filters for one user at the given instant.
func (f HistoryFilters) Criteria(userID string, now time.Time) HistoryCriteria {
	c := HistoryCriteria{UserID: userID, Search: f.Search}
	if f.Difficulty != AllSelector {
		c.Difficulty = f.Difficulty
	}
	if f.Topic != AllSelector {
		c.Topic = f.Topic
	}
	if since, ok := f.DateRange.Since(now); ok {
		c.Since = since
	}
	return c
}

// Matches applies the criteria to one record.
func (c HistoryCriteria) Matches(r QuizRecord) bool {
	if r.UserID != c.UserID {
		return false
	}
	if c.Difficulty != "" && string(r.Difficulty) != c.Difficulty {
		return false
	}
	if c.Topic != "" && !containsFold(r.Topic, c.Topic) {
		return false
	}
	if c.Search != "" && !containsFold(r.Topic, c.Search) && !containsFold(r.Category, c.Search) {
		return false
	}
	if !c.Since.IsZero() {
		if r.CreatedAt.IsZero() || r.CreatedAt.Before(c.Since) {
			return false
		}
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// SortRecords orders records in place. Records with a missing timestamp always
// go last; score ties fall back to newest first.
func SortRecords(records []QuizRecord, key SortKey) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		switch key {
		case SortHighest:
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		case SortLowest:
			if a.Score != b.Score {
				return a.Score < b.Score
			}
		}
		if a.CreatedAt.IsZero() != b.CreatedAt.IsZero() {
			return !a.CreatedAt.IsZero()
		}
		if key == SortOldest {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// DefaultPageSize is the number of records on a history page.
const DefaultPageSize = 10

// PageRequest is a 1-indexed page of a given size.
type PageRequest struct {
	Page     int
	PageSize int
}

// Offset is the number of records skipped before the page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// HistoryPage is one slice of the filtered, sorted history.
type HistoryPage struct {
	Records    []QuizRecord `json:"records"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}

// TotalPages is ceil(total/pageSize), never below one so page 1 is always addressable.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// HistoryAggregates summarises every record matching a filter set.
type HistoryAggregates struct {
	TotalCount         int     `json:"totalCount"`
	AverageScore       float64 `json:"averageScore"`
	AverageTimeSeconds float64 `json:"averageTimeSeconds"`
	TotalQuestionsSum  int     `json:"totalQuestionsSum"`
}

// ComputeAggregates turns raw sums into the summary. The average score is the
// share of all questions answered correctly: sum(score)/sum(total_questions)*100.
func ComputeAggregates(count int, sumScore, sumTotal, sumTime int64) HistoryAggregates {
	agg := HistoryAggregates{TotalCount: count, TotalQuestionsSum: int(sumTotal)}
	if count == 0 {
		return HistoryAggregates{}
	}
	if sumTotal > 0 {
		agg.AverageScore = float64(sumScore) / float64(sumTotal) * 100
	}
	agg.AverageTimeSeconds = float64(sumTime) / float64(count)
	return agg
}

// AggregateRecords sums already-filtered records.
func AggregateRecords(records []QuizRecord) HistoryAggregates {
	var sumScore, sumTotal, sumTime int64
	for _, r := range records {
		sumScore += int64(r.Score)
		sumTotal += int64(r.TotalQuestions)
		sumTime += int64(r.TimeTaken)
	}
	return ComputeAggregates(len(records), sumScore, sumTotal, sumTime)
}

// FormatClock renders seconds as MM:SS, rounded to the nearest second.
func FormatClock(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "00:00"
	}
	total := int(math.Round(seconds))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
