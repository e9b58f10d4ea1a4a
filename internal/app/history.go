package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"quiz-arena/internal/domain"

	"golang.org/x/sync/errgroup"
)

// HistoryOption customises a HistoryService.
type HistoryOption func(*HistoryService)

// WithLocation sets the timezone used for date-range boundaries.
func WithLocation(loc *time.Location) HistoryOption {
	return func(s *HistoryService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithMaxPageSize caps the page size callers may request.
func WithMaxPageSize(n int) HistoryOption {
	return func(s *HistoryService) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}

// WithDefaultPageSize sets the page size used when callers pass none.
func WithDefaultPageSize(n int) HistoryOption {
	return func(s *HistoryService) {
		if n > 0 {
			s.defaultPageSize = n
		}
	}
}

// WithHistoryClock is test-only for deterministic date ranges.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(s *HistoryService) { s.now = now }
}

// HistoryService translates history filters into paged and aggregate store queries.
type HistoryService struct {
	results         ResultStore
	catalog         domain.Catalog
	logger          *slog.Logger
	now             func() time.Time
	location        *time.Location
	defaultPageSize int
	maxPageSize     int
}

func NewHistoryService(results ResultStore, logger *slog.Logger, opts ...HistoryOption) *HistoryService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &HistoryService{
		results:         results,
		catalog:         domain.DefaultCatalog,
		logger:          logger,
		now:             time.Now,
		location:        time.Local,
		defaultPageSize: domain.DefaultPageSize,
		maxPageSize:     50,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseFilters validates raw selector values against the catalog.
func (s *HistoryService) ParseFilters(search, topic, difficulty, sortBy, dateRange string) (domain.HistoryFilters, error) {
	return domain.ParseHistoryFilters(search, topic, difficulty, sortBy, dateRange, s.catalog)
}

// PageSize normalises a requested page size.
func (s *HistoryService) PageSize(requested int) int {
	if requested <= 0 {
		return s.defaultPageSize
	}
	if requested > s.maxPageSize {
		return s.maxPageSize
	}
	return requested
}

func (s *HistoryService) criteria(userID string, filters domain.HistoryFilters) domain.HistoryCriteria {
	return filters.Criteria(userID, s.now().In(s.location))
}

// Page returns one page of the user's filtered, sorted history.
func (s *HistoryService) Page(ctx context.Context, userID string, filters domain.HistoryFilters, page, pageSize int) (domain.HistoryPage, error) {
	if page < 1 {
		return domain.HistoryPage{}, domain.ErrPageOutOfRange
	}
	req := domain.PageRequest{Page: page, PageSize: s.PageSize(pageSize)}

	records, total, err := s.results.Query(ctx, s.criteria(userID, filters), filters.Sort, req)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("query history: %w", err)
	}
	if records == nil {
		records = []domain.QuizRecord{}
	}
	return domain.HistoryPage{
		Records:    records,
		TotalCount: total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: domain.TotalPages(total, req.PageSize),
	}, nil
}

// Aggregates summarises every record matching the filters, independent of paging.
func (s *HistoryService) Aggregates(ctx context.Context, userID string, filters domain.HistoryFilters) (domain.HistoryAggregates, error) {
	agg, err := s.results.Aggregate(ctx, s.criteria(userID, filters))
	if err != nil {
		return domain.HistoryAggregates{}, fmt.Errorf("aggregate history: %w", err)
	}
	return agg, nil
}

// Detail loads one of the user's records. Answered questions that cannot be
// rendered are dropped with a warning instead of failing the whole record.
func (s *HistoryService) Detail(ctx context.Context, userID, recordID string) (domain.QuizRecord, error) {
	record, err := s.results.Get(ctx, userID, recordID)
	if err != nil {
		return domain.QuizRecord{}, err
	}
	kept := make([]domain.AnsweredQuestion, 0, len(record.Questions))
	for i, q := range record.Questions {
		if q.Malformed() {
			s.logger.WarnContext(ctx, "skipping malformed stored question", "record", recordID, "position", i)
			continue
		}
		kept = append(kept, q)
	}
	record.Questions = kept
	return record, nil
}

// HistoryState is a copy of a HistoryView for rendering. The page and the
// aggregates fail independently, each with its own error slot.
type HistoryState struct {
	Filters           domain.HistoryFilters     `json:"filters"`
	Page              int                       `json:"page"`
	PageSize          int                       `json:"pageSize"`
	Results           *domain.HistoryPage       `json:"results,omitempty"`
	Aggregates        *domain.HistoryAggregates `json:"aggregates,omitempty"`
	AverageTime       string                    `json:"averageTime"`
	PageLoading       bool                      `json:"pageLoading"`
	AggregatesLoading bool                      `json:"aggregatesLoading"`
	PageError         error                     `json:"-"`
	AggregatesError   error                     `json:"-"`
}

// TotalPages is derived from the last known match count.
func (st HistoryState) TotalPages() int {
	switch {
	case st.Results != nil:
		return domain.TotalPages(st.Results.TotalCount, st.PageSize)
	case st.Aggregates != nil:
		return domain.TotalPages(st.Aggregates.TotalCount, st.PageSize)
	}
	return 1
}

// HistoryView is the state holder one history screen owns. Responses that arrive
// after a newer request, or after Close, are dropped.
type HistoryView struct {
	service  *HistoryService
	userID   string
	onChange func(HistoryState)

	notifyMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	filters    domain.HistoryFilters
	page       int
	pageSize   int
	results    *domain.HistoryPage
	aggregates *domain.HistoryAggregates
	pageErr    error
	aggErr     error
	pageGen    uint64
	aggGen     uint64
	pageBusy   bool
	aggBusy    bool
}

// NewHistoryView creates a view on page 1 with default filters. onChange may be nil;
// calls to it never overlap.
func (s *HistoryService) NewHistoryView(userID string, pageSize int, onChange func(HistoryState)) *HistoryView {
	return &HistoryView{
		service:  s,
		userID:   userID,
		onChange: onChange,
		filters:  domain.DefaultHistoryFilters(),
		page:     1,
		pageSize: s.PageSize(pageSize),
	}
}

// State returns a copy of the view.
func (v *HistoryView) State() HistoryState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *HistoryView) stateLocked() HistoryState {
	st := HistoryState{
		Filters:           v.filters,
		Page:              v.page,
		PageSize:          v.pageSize,
		PageLoading:       v.pageBusy,
		AggregatesLoading: v.aggBusy,
		PageError:         v.pageErr,
		AggregatesError:   v.aggErr,
		AverageTime:       domain.FormatClock(0),
	}
	if v.results != nil {
		page := *v.results
		st.Results = &page
	}
	if v.aggregates != nil {
		agg := *v.aggregates
		st.Aggregates = &agg
		st.AverageTime = domain.FormatClock(agg.AverageTimeSeconds)
	}
	return st
}

func (v *HistoryView) notify() {
	if v.onChange == nil {
		return
	}
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	v.onChange(v.State())
}

// Refresh fetches the page and the aggregates concurrently. The returned error
// joins both failures; State keeps them apart.
func (v *HistoryView) Refresh(ctx context.Context) error {
	var g errgroup.Group
	var pageErr, aggErr error
	g.Go(func() error {
		pageErr = v.fetchPage(ctx)
		return nil
	})
	g.Go(func() error {
		aggErr = v.fetchAggregates(ctx)
		return nil
	})
	_ = g.Wait()
	return errors.Join(pageErr, aggErr)
}

// SetFilters replaces the filters, returns to page 1 and refreshes both queries.
// Results of the previous filters are discarded so a failed fetch never leaves
// them paired with the new filters.
func (v *HistoryView) SetFilters(ctx context.Context, filters domain.HistoryFilters) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return domain.ErrViewClosed
	}
	v.filters = filters
	v.page = 1
	v.results = nil
	v.aggregates = nil
	v.mu.Unlock()
	return v.Refresh(ctx)
}

// SetPageSize changes the page size and reloads from page 1.
func (v *HistoryView) SetPageSize(ctx context.Context, pageSize int) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return domain.ErrViewClosed
	}
	v.pageSize = v.service.PageSize(pageSize)
	v.page = 1
	v.mu.Unlock()
	return v.fetchPage(ctx)
}

// GoToPage navigates within [1, totalPages]. Out-of-range requests are rejected
// and leave the view untouched.
func (v *HistoryView) GoToPage(ctx context.Context, page int) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return domain.ErrViewClosed
	}
	if total := v.stateLocked().TotalPages(); page < 1 || page > total {
		v.mu.Unlock()
		return fmt.Errorf("%w: %d not in [1, %d]", domain.ErrPageOutOfRange, page, total)
	}
	v.page = page
	v.mu.Unlock()
	return v.fetchPage(ctx)
}

// RetryPage re-runs only the paged query.
func (v *HistoryView) RetryPage(ctx context.Context) error {
	return v.fetchPage(ctx)
}

// RetryAggregates re-runs only the aggregate query.
func (v *HistoryView) RetryAggregates(ctx context.Context) error {
	return v.fetchAggregates(ctx)
}

// Close tears the view down; in-flight responses are ignored.
func (v *HistoryView) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

func (v *HistoryView) fetchPage(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return domain.ErrViewClosed
	}
	v.pageGen++
	gen, filters, page, size := v.pageGen, v.filters, v.page, v.pageSize
	v.pageBusy = true
	v.mu.Unlock()
	v.notify()

	result, err := v.service.Page(ctx, v.userID, filters, page, size)

	v.mu.Lock()
	if v.closed || gen != v.pageGen {
		v.mu.Unlock()
		return nil
	}
	v.pageBusy = false
	v.pageErr = err
	if err == nil {
		v.results = &result
	}
	v.mu.Unlock()
	v.notify()
	return err
}

func (v *HistoryView) fetchAggregates(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return domain.ErrViewClosed
	}
	v.aggGen++
	gen, filters := v.aggGen, v.filters
	v.aggBusy = true
	v.mu.Unlock()
	v.notify()

	agg, err := v.service.Aggregates(ctx, v.userID, filters)

	v.mu.Lock()
	if v.closed || gen != v.aggGen {
		v.mu.Unlock()
		return nil
	}
	v.aggBusy = false
	v.aggErr = err
	if err == nil {
		v.aggregates = &agg
	}
	v.mu.Unlock()
	v.notify()
	return err
}
