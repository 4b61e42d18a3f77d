package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/seat-allocator/internal/api"
	"github.com/eugenenazirov/seat-allocator/internal/apportionment"
	"github.com/eugenenazirov/seat-allocator/internal/storage"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()

	store := storage.NewMemoryStorage()
	logger := zaptest.NewLogger(t)
	handler := api.NewHandler(apportionment.New(), store, api.WithLogger(logger))
	return api.NewRouter(handler, logger)
}

func performRequest(t *testing.T, handler http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIntegrationFlow(t *testing.T) {
	handler := newRouter(t)
	jsonHeaders := map[string]string{"Content-Type": "application/json"}

	rec := performRequest(t, handler, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}

	updatePayload := map[string]any{"seats": 21, "applyThreshold": true}
	payload, _ := json.Marshal(updatePayload)
	rec = performRequest(t, handler, http.MethodPut, "/api/settings", payload, jsonHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from settings update, got %d", rec.Code)
	}

	apportionPayload := map[string]any{
		"parties": []map[string]any{
			{"party": "S", "votes": 974589},
			{"party": "M", "votes": 698770},
			{"party": "SD", "votes": 636877},
			{"party": "C", "votes": 413537},
			{"party": "V", "votes": 282300},
			{"party": "KD", "votes": 357856},
			{"party": "L", "votes": 171419},
			{"party": "MP", "votes": 478258},
			{"party": "FI", "votes": 32143},
			{"party": "PP", "votes": 7279},
		},
		"includeRounds": true,
	}
	body, _ := json.Marshal(apportionPayload)
	rec = performRequest(t, handler, http.MethodPost, "/api/apportion", body, jsonHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from apportion, got %d", rec.Code)
	}

	var response struct {
		TotalSeats int                            `json:"totalSeats"`
		Seats      map[string]apportionment.Seats `json:"seats"`
		Rounds     []json.RawMessage              `json:"rounds"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.TotalSeats != 21 {
		t.Fatalf("expected 21 seats, got %d", response.TotalSeats)
	}
	if len(response.Rounds) != 21 {
		t.Fatalf("expected 21 rounds, got %d", len(response.Rounds))
	}

	want := map[string]int{"S": 5, "M": 4, "SD": 3, "C": 2, "V": 1, "KD": 2, "L": 1, "MP": 3, "FI": 0, "PP": 0}
	total := 0
	for party, seats := range want {
		got, ok := response.Seats[party]
		if !ok {
			t.Fatalf("expected party %s in result", party)
		}
		if got.Count() != seats {
			t.Fatalf("party %s: expected %d seats, got %d", party, seats, got.Count())
		}
		total += got.Count()
	}
	if total != 21 {
		t.Fatalf("expected seats to sum to 21, got %d", total)
	}
}
