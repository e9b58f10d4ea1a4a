package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/generator"
)

// UserIDHeader carries the caller's identity, set by the upstream auth proxy.
const UserIDHeader = "X-User-ID"

// APIHandler serves the JSON endpoints for topics, history, leaderboard and explanations.
type APIHandler struct {
	quiz        *app.QuizService
	history     *app.HistoryService
	leaderboard *app.LeaderboardService
	logger      *slog.Logger
}

func NewAPIHandler(quiz *app.QuizService, history *app.HistoryService, leaderboard *app.LeaderboardService, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &APIHandler{quiz: quiz, history: history, leaderboard: leaderboard, logger: logger}
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type topicPayload struct {
	Key        string   `json:"key"`
	Categories []string `json:"categories"`
}

type statsPayload struct {
	domain.HistoryAggregates
	AverageTime string `json:"averageTime"`
}

type explainPayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps domain errors to status codes; anything unknown is logged and hidden.
func (h *APIHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	respondJSON(w, status, errorPayload{Code: errorCode(err), Message: msg})
}

func statusFor(err error) int {
	var genErr *generator.Error
	switch {
	case errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrPageOutOfRange),
		errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRecordNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionCompleted),
		errors.Is(err, domain.ErrSessionStarted),
		errors.Is(err, domain.ErrSessionNotStarted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGenerationFailed), errors.As(err, &genErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, domain.ErrInvalidSettings):
		return "invalid_settings"
	case errors.Is(err, domain.ErrInvalidFilter):
		return "invalid_filter"
	case errors.Is(err, domain.ErrPageOutOfRange):
		return "page_out_of_range"
	case errors.Is(err, domain.ErrOptionNotFound):
		return "option_not_found"
	case errors.Is(err, domain.ErrRecordNotFound):
		return "record_not_found"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrSessionCompleted):
		return "session_completed"
	case errors.Is(err, domain.ErrSessionNotStarted), errors.Is(err, domain.ErrSessionStarted):
		return "session_state"
	}
	var genErr *generator.Error
	if errors.As(err, &genErr) {
		return "generator_error"
	}
	return "internal"
}

func userIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
		return id
	}
	// browsers cannot set headers on a websocket handshake
	return strings.TrimSpace(r.URL.Query().Get("userId"))
}

func (h *APIHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := userIDFrom(r)
	if userID == "" {
		respondJSON(w, http.StatusUnauthorized, errorPayload{Code: "unauthorized", Message: "missing user id"})
		return "", false
	}
	return userID, true
}

// Topics lists the catalog.
func (h *APIHandler) Topics(w http.ResponseWriter, r *http.Request) {
	catalog := h.quiz.Topics()
	topics := make([]topicPayload, 0, len(catalog))
	for _, key := range catalog.Topics() {
		topics = append(topics, topicPayload{Key: key, Categories: catalog[key]})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"topics":       topics,
		"difficulties": domain.Difficulties,
	})
}

func (h *APIHandler) filters(r *http.Request) (domain.HistoryFilters, error) {
	q := r.URL.Query()
	return h.history.ParseFilters(q.Get("search"), q.Get("topic"), q.Get("difficulty"), q.Get("sortBy"), q.Get("dateRange"))
}

// History returns one page of the caller's history.
func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	filters, err := h.filters(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	pageSize, err := intParam(r, "pageSize", 0)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.history.Page(r.Context(), userID, filters, page, pageSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if page > result.TotalPages {
		h.respondError(w, r, domain.ErrPageOutOfRange)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HistoryStats returns the aggregates over every record matching the filters.
func (h *APIHandler) HistoryStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	filters, err := h.filters(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	agg, err := h.history.Aggregates(r.Context(), userID, filters)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, statsPayload{HistoryAggregates: agg, AverageTime: domain.FormatClock(agg.AverageTimeSeconds)})
}

// HistoryDetail returns one stored attempt.
func (h *APIHandler) HistoryDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	record, err := h.history.Detail(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// Leaderboard returns the ranking for the given selectors.
func (h *APIHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	entries, err := h.leaderboard.Top(r.Context(), q.Get("topic"), q.Get("category"), q.Get("difficulty"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Explain asks the generator why an answer is correct.
func (h *APIHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var payload explainPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(payload.Question) == "" || strings.TrimSpace(payload.Answer) == "" {
		respondJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "question and answer are required"})
		return
	}
	explanation, err := h.quiz.Explain(r.Context(), payload.Question, payload.Answer)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"explanation": explanation})
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Join(domain.ErrInvalidFilter, errors.New(name+" must be an integer"))
	}
	return n, nil
}
