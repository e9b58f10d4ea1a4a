package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"quiz-arena/internal/domain"
)

// LeaderboardStore computes the ranking for a query. Implementations return
// entries already ranked and truncated to query.Limit.
type LeaderboardStore interface {
	Leaderboard(ctx context.Context, query domain.LeaderboardQuery) ([]domain.LeaderboardEntry, error)
}

// LeaderboardOption customises a LeaderboardService.
type LeaderboardOption func(*LeaderboardService)

// WithDefaultLimit sets the number of entries returned when callers pass none.
func WithDefaultLimit(n int) LeaderboardOption {
	return func(s *LeaderboardService) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// LeaderboardService validates leaderboard selectors and reads through the store.
type LeaderboardService struct {
	store        LeaderboardStore
	catalog      domain.Catalog
	logger       *slog.Logger
	defaultLimit int
}

func NewLeaderboardService(store LeaderboardStore, logger *slog.Logger, opts ...LeaderboardOption) *LeaderboardService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &LeaderboardService{
		store:        store,
		catalog:      domain.DefaultCatalog,
		logger:       logger,
		defaultLimit: domain.DefaultLeaderboardLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Top returns the ranking for the given selectors. "all" or an empty selector
// disables that filter; unknown topics, categories and difficulties are rejected.
func (s *LeaderboardService) Top(ctx context.Context, topic, category, difficulty string, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	query := domain.NewLeaderboardQuery(topic, category, difficulty, limit)
	if query.Topic != "" && !s.catalog.HasTopic(query.Topic) {
		return nil, fmt.Errorf("%w: topic %q", domain.ErrInvalidFilter, query.Topic)
	}
	if query.Category != "" && query.Topic != "" && !s.catalog.HasCategory(query.Topic, query.Category) {
		return nil, fmt.Errorf("%w: category %q", domain.ErrInvalidFilter, query.Category)
	}
	if query.Difficulty != "" {
		if _, err := domain.ParseDifficulty(query.Difficulty); err != nil {
			return nil, err
		}
	}

	entries, err := s.store.Leaderboard(ctx, query)
	if err != nil {
		s.logger.ErrorContext(ctx, "leaderboard query failed", "topic", query.Topic, "error", err)
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	return entries, nil
}
