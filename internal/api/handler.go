package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/seat-allocator/internal/apportionment"
	"github.com/eugenenazirov/seat-allocator/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Handler wires apportionment and storage dependencies into HTTP handlers.
type Handler struct {
	apportioner apportionment.Apportioner
	storage     storage.Storage
	logger      *zap.Logger

	clock func() time.Time

	mu                sync.RWMutex
	settingsUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithLogger sets the logger used for apportionment summaries.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(apportioner apportionment.Apportioner, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		apportioner: apportioner,
		storage:     store,
		logger:      zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.settingsUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	_ = r
	settings, err := h.storage.GetSettings()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.settingsResponse(settings, ""))
}

func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	current, err := h.storage.GetSettings()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	updated, err := req.apply(current)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err.Error())
		return
	}

	if err := h.storage.SetSettings(updated); err != nil {
		if errors.Is(err, storage.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, "Invalid settings", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markSettingsUpdated()

	settings, err := h.storage.GetSettings()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.settingsResponse(settings, "Settings updated successfully"))
}

func (h *Handler) handleApportion(w http.ResponseWriter, r *http.Request) {
	var req apportionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	if len(req.Parties) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "parties must contain at least one party")
		return
	}

	settings, err := h.storage.GetSettings()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	seats, opts, err := req.resolve(settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	votes := make([]apportionment.PartyVotes, len(req.Parties))
	for i, p := range req.Parties {
		votes[i] = apportionment.PartyVotes{Party: p.Party, Votes: p.Votes}
	}

	start := time.Now()
	result, apportionErr := h.apportioner.Apportion(votes, seats, opts)
	elapsed := time.Since(start)

	if apportionErr != nil {
		switch {
		case errors.Is(apportionErr, apportionment.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "Invalid request", apportionErr.Error())
		case errors.Is(apportionErr, apportionment.ErrNoEligibleParties):
			suggestion := "Disable the threshold or check that at least one party has votes"
			if !opts.ApplyThreshold {
				suggestion = "Check that at least one party has votes"
			}
			writeError(w, http.StatusUnprocessableEntity, "No eligible parties", apportionErr.Error(), suggestion)
		default:
			writeInternalError(w, apportionErr)
		}
		return
	}

	disproportionality, err := apportionment.Disproportionality(result)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	h.logger.Debug("apportionment completed",
		zap.Int("parties", len(votes)),
		zap.Int("seats", seats),
		zap.Bool("threshold", opts.ApplyThreshold),
		zap.Duration("duration", elapsed),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)

	resp := apportionResponse{
		TotalSeats:         result.TotalSeats,
		TotalVotes:         result.TotalVotes,
		MinVotesRequired:   result.MinVotesRequired,
		ThresholdApplied:   result.ThresholdApplied,
		TieBreak:           opts.TieBreak.String(),
		Allocations:        make([]allocationResponse, len(result.Allocations)),
		Seats:              result.SeatMap(),
		Disproportionality: disproportionality,
		CalculationTimeMs:  elapsed.Milliseconds(),
	}
	for i, a := range result.Allocations {
		resp.Allocations[i] = allocationResponse{
			Party:    a.Party,
			Votes:    a.Votes,
			Seats:    a.Seats,
			Eligible: a.Eligible,
		}
	}
	if req.IncludeRounds {
		resp.Rounds = make([]roundResponse, len(result.Rounds))
		for i, round := range result.Rounds {
			resp.Rounds[i] = roundResponse{
				Seat:     round.Seat,
				Party:    round.Party,
				Quotient: round.Quotient,
				Divisor:  round.Divisor,
				Tied:     round.Tied,
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) settingsResponse(settings storage.Settings, message string) settingsResponse {
	return settingsResponse{
		Seats:          settings.TotalSeats,
		ApplyThreshold: settings.Options.ApplyThreshold,
		Threshold:      settings.Options.Threshold,
		FirstDivisor:   settings.Options.FirstDivisor,
		TieBreak:       settings.Options.TieBreak.String(),
		NoSeats:        settings.Options.NoSeats.String(),
		UpdatedAt:      h.currentSettingsUpdatedAt(),
		Message:        message,
	}
}

func (h *Handler) currentSettingsUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settingsUpdatedAt
}

func (h *Handler) markSettingsUpdated() {
	h.mu.Lock()
	h.settingsUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type partyVotesPayload struct {
	Party string `json:"party"`
	Votes int64  `json:"votes"`
}

type apportionRequest struct {
	Parties        []partyVotesPayload `json:"parties"`
	Seats          *int                `json:"seats,omitempty"`
	ApplyThreshold *bool               `json:"applyThreshold,omitempty"`
	TieBreak       string              `json:"tieBreak,omitempty"`
	NoSeats        string              `json:"noSeats,omitempty"`
	IncludeRounds  bool                `json:"includeRounds,omitempty"`
}

// resolve merges request overrides onto the stored settings.
func (r apportionRequest) resolve(settings storage.Settings) (int, apportionment.Options, error) {
	seats := settings.TotalSeats
	if r.Seats != nil {
		seats = *r.Seats
	}
	if seats > storage.MaxTotalSeats {
		return 0, apportionment.Options{}, fmt.Errorf("seats must not exceed %d", storage.MaxTotalSeats)
	}

	opts := settings.Options
	if r.ApplyThreshold != nil {
		opts.ApplyThreshold = *r.ApplyThreshold
	}
	if r.TieBreak != "" {
		tieBreak, err := apportionment.ParseTieBreak(r.TieBreak)
		if err != nil {
			return 0, apportionment.Options{}, err
		}
		opts.TieBreak = tieBreak
	}
	if r.NoSeats != "" {
		style, err := apportionment.ParseNoSeatsStyle(r.NoSeats)
		if err != nil {
			return 0, apportionment.Options{}, err
		}
		opts.NoSeats = style
	}
	return seats, opts, nil
}

type settingsRequest struct {
	Seats          *int     `json:"seats,omitempty"`
	ApplyThreshold *bool    `json:"applyThreshold,omitempty"`
	Threshold      *float64 `json:"threshold,omitempty"`
	FirstDivisor   *float64 `json:"firstDivisor,omitempty"`
	TieBreak       *string  `json:"tieBreak,omitempty"`
	NoSeats        *string  `json:"noSeats,omitempty"`
}

// apply returns current with every field present in the request replaced.
func (r settingsRequest) apply(current storage.Settings) (storage.Settings, error) {
	if r.Seats != nil {
		current.TotalSeats = *r.Seats
	}
	if r.ApplyThreshold != nil {
		current.Options.ApplyThreshold = *r.ApplyThreshold
	}
	if r.Threshold != nil {
		current.Options.Threshold = *r.Threshold
	}
	if r.FirstDivisor != nil {
		current.Options.FirstDivisor = *r.FirstDivisor
	}
	if r.TieBreak != nil {
		tieBreak, err := apportionment.ParseTieBreak(*r.TieBreak)
		if err != nil {
			return storage.Settings{}, err
		}
		current.Options.TieBreak = tieBreak
	}
	if r.NoSeats != nil {
		style, err := apportionment.ParseNoSeatsStyle(*r.NoSeats)
		if err != nil {
			return storage.Settings{}, err
		}
		current.Options.NoSeats = style
	}
	return current, nil
}

type allocationResponse struct {
	Party    string              `json:"party"`
	Votes    int64               `json:"votes"`
	Seats    apportionment.Seats `json:"seats"`
	Eligible bool                `json:"eligible"`
}

type roundResponse struct {
	Seat     int      `json:"seat"`
	Party    string   `json:"party"`
	Quotient float64  `json:"quotient"`
	Divisor  float64  `json:"divisor"`
	Tied     []string `json:"tied,omitempty"`
}

type apportionResponse struct {
	TotalSeats         int                            `json:"totalSeats"`
	TotalVotes         int64                          `json:"totalVotes"`
	MinVotesRequired   float64                        `json:"minVotesRequired"`
	ThresholdApplied   bool                           `json:"thresholdApplied"`
	TieBreak           string                         `json:"tieBreak"`
	Allocations        []allocationResponse           `json:"allocations"`
	Seats              map[string]apportionment.Seats `json:"seats"`
	Rounds             []roundResponse                `json:"rounds,omitempty"`
	Disproportionality float64                        `json:"disproportionality"`
	CalculationTimeMs  int64                          `json:"calculationTimeMs"`
}

type settingsResponse struct {
	Seats          int       `json:"seats"`
	ApplyThreshold bool      `json:"applyThreshold"`
	Threshold      float64   `json:"threshold"`
	FirstDivisor   float64   `json:"firstDivisor"`
	TieBreak       string    `json:"tieBreak"`
	NoSeats        string    `json:"noSeats"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Message        string    `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

// writeDecodeError reports a request body that could not be decoded.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request too large", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
