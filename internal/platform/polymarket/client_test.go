package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

// newGammaServer serves the two-hop resolve path: /events?slug= and
// /markets/{id}.
func newGammaServer(t *testing.T, market APIMarket) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/events":
			if got := r.URL.Query().Get("slug"); got == "" {
				t.Errorf("events request missing slug parameter")
			}
			events := []APIEvent{{
				ID:      "event-1",
				Slug:    r.URL.Query().Get("slug"),
				Markets: []APIMarket{{ID: market.ID}},
			}}
			if err := json.NewEncoder(w).Encode(events); err != nil {
				t.Errorf("encode events: %v", err)
			}
		case r.URL.Path == "/markets/"+market.ID:
			if err := json.NewEncoder(w).Encode(market); err != nil {
				t.Errorf("encode market: %v", err)
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(gammaURL, clobURL string) *Client {
	return NewClient(ClientConfig{
		GammaHost:    gammaURL,
		ClobHost:     clobURL,
		CallSpacing:  300 * time.Millisecond,
		MaxRangeDays: 7,
		Timeout:      5 * time.Second,
	})
}

func TestCurrentPriceTwoHopResolve(t *testing.T) {
	market := APIMarket{
		ID:            "market-42",
		Question:      "Will it happen?",
		OutcomePrices: `["0.42", "0.58"]`,
		ClobTokenIds:  `["tok-1", "tok-2"]`,
		Active:        true,
	}
	server := newGammaServer(t, market)
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	quote, err := client.CurrentPrice(context.Background(), "https://polymarket.com/event/will-it-happen")
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if quote.ExternalID != "market-42" {
		t.Errorf("external id = %q, want market-42", quote.ExternalID)
	}
	if quote.Probability != 0.42 {
		t.Errorf("probability = %v, want 0.42", quote.Probability)
	}
	if quote.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestCurrentPriceNoEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	_, err := client.CurrentPrice(context.Background(), "unknown-slug")
	if !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("error = %v, want ErrMarketNotFound", err)
	}
}

func TestCurrentPriceMalformedPrices(t *testing.T) {
	tests := []struct {
		name   string
		market APIMarket
		want   error
	}{
		{
			"missing outcomePrices",
			APIMarket{ID: "m1", ClobTokenIds: `["t"]`},
			domain.ErrMalformedResponse,
		},
		{
			"unparsable outcomePrices",
			APIMarket{ID: "m1", OutcomePrices: "not json", ClobTokenIds: `["t"]`},
			domain.ErrMalformedResponse,
		},
		{
			"empty price list",
			APIMarket{ID: "m1", OutcomePrices: "[]", ClobTokenIds: `["t"]`},
			domain.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newGammaServer(t, tt.market)
			defer server.Close()

			client := newTestClient(server.URL, server.URL)
			_, err := client.CurrentPrice(context.Background(), "some-slug")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCurrentPriceUpstreamStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, domain.ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(server.URL, server.URL)
			_, err := client.CurrentPrice(context.Background(), "some-slug")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHistoryClampsRangeAndFetches(t *testing.T) {
	market := APIMarket{
		ID:            "market-42",
		OutcomePrices: `["0.42", "0.58"]`,
		ClobTokenIds:  `["tok-1", "tok-2"]`,
	}
	gamma := newGammaServer(t, market)
	defer gamma.Close()

	var gotStart, gotEnd int64
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prices-history" {
			t.Errorf("unexpected clob path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("market") != "tok-1" {
			t.Errorf("market token = %q, want tok-1", q.Get("market"))
		}
		if q.Get("fidelity") != "30" {
			t.Errorf("fidelity = %q, want 30", q.Get("fidelity"))
		}
		gotStart, _ = strconv.ParseInt(q.Get("startTs"), 10, 64)
		gotEnd, _ = strconv.ParseInt(q.Get("endTs"), 10, 64)

		w.Header().Set("Content-Type", "application/json")
		resp := APIPriceHistory{History: []domain.RawPoint{
			{T: 1718236800, P: 0.42},
			{T: 1718238600, P: 0.43},
		}}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode history: %v", err)
		}
	}))
	defer clob.Close()

	client := newTestClient(gamma.URL, clob.URL)

	// 30 requested days must be clamped to the 7-day upstream max.
	points, err := client.History(context.Background(), "some-slug", 30)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].T != 1718236800 || points[0].P != 0.42 {
		t.Errorf("first point = %+v, want {1718236800 0.42}", points[0])
	}

	rangeDays := float64(gotEnd-gotStart) / 86400
	if rangeDays < 6.9 || rangeDays > 7.1 {
		t.Errorf("requested range = %.1f days, want clamped to 7", rangeDays)
	}
}

func TestHistoryNoToken(t *testing.T) {
	market := APIMarket{
		ID:            "market-42",
		OutcomePrices: `["0.42"]`,
	}
	server := newGammaServer(t, market)
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	_, err := client.History(context.Background(), "some-slug", 7)
	if !errors.Is(err, domain.ErrNoHistoryToken) {
		t.Errorf("error = %v, want ErrNoHistoryToken", err)
	}
}

func TestSlugFromRef(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"bare slug", "will-it-happen", "will-it-happen"},
		{"event url", "https://polymarket.com/event/will-it-happen", "will-it-happen"},
		{"trailing slash", "https://polymarket.com/event/will-it-happen/", "will-it-happen"},
		{"query string", "https://polymarket.com/event/will-it-happen?tid=123", "will-it-happen"},
		{"fragment", "will-it-happen#details", "will-it-happen"},
		{"whitespace", "  will-it-happen ", "will-it-happen"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := slugFromRef(tt.ref); got != tt.want {
				t.Errorf("slugFromRef(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestSpacerEnforcesMinimumDelay(t *testing.T) {
	s := &spacer{min: 50 * time.Millisecond}
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 100*time.Millisecond {
		t.Errorf("three calls took %v, want at least 100ms of spacing", elapsed)
	}
}

func TestSpacerRespectsCancellation(t *testing.T) {
	s := &spacer{min: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancel()
	if err := s.wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("second wait error = %v, want context.Canceled", err)
	}
}
