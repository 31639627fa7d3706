// Package polymarket is the REST client for the Polymarket Gamma and CLOB
// APIs. Resolving a market takes two sequential lookups because the Gamma API
// exposes the current price and the history token under different
// identifiers: event-by-slug yields the market id, market-by-id yields the
// outcome price and the CLOB token used for historical queries.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

// ClientConfig holds endpoints and fetch parameters for the client.
type ClientConfig struct {
	GammaHost string
	ClobHost  string
	// FidelityMinutes is the sampling granularity requested from
	// prices-history (minutes between returned points).
	FidelityMinutes int
	// CallSpacing is the minimum delay between consecutive calls on the
	// sequential history path.
	CallSpacing time.Duration
	// MaxRangeDays caps the historical fetch window (upstream maximum).
	MaxRangeDays int
	Timeout      time.Duration
}

// Client provides read-only access to Polymarket market data.
type Client struct {
	gammaHost    string
	clobHost     string
	fidelity     int
	maxRangeDays int
	httpClient   *http.Client
	spacer       *spacer
}

// NewClient creates a new Polymarket client.
func NewClient(cfg ClientConfig) *Client {
	fidelity := cfg.FidelityMinutes
	if fidelity <= 0 {
		fidelity = 30
	}
	maxRange := cfg.MaxRangeDays
	if maxRange <= 0 {
		maxRange = 7
	}
	spacing := cfg.CallSpacing
	if spacing < 300*time.Millisecond {
		spacing = 300 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		gammaHost:    strings.TrimRight(cfg.GammaHost, "/"),
		clobHost:     strings.TrimRight(cfg.ClobHost, "/"),
		fidelity:     fidelity,
		maxRangeDays: maxRange,
		httpClient:   &http.Client{Timeout: timeout},
		spacer:       &spacer{min: spacing},
	}
}

// Source returns the source this client serves.
func (c *Client) Source() domain.Source {
	return domain.SourcePolymarket
}

// CurrentPrice resolves an external reference (event URL or slug) to the
// market's current probability fraction and its canonical market id.
func (c *Client) CurrentPrice(ctx context.Context, ref string) (domain.Quote, error) {
	market, err := c.resolveMarket(ctx, ref, false)
	if err != nil {
		return domain.Quote{}, err
	}

	price, err := market.YesPrice()
	if err != nil {
		return domain.Quote{}, err
	}

	return domain.Quote{
		ExternalID:  market.ID,
		Probability: price,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// History fetches the market's probability series for the last days days,
// clamped to the upstream maximum range. Points come back in upstream units
// (epoch seconds, probability fractions); conversion is the merge engine's
// job.
func (c *Client) History(ctx context.Context, ref string, days int) ([]domain.RawPoint, error) {
	if days <= 0 || days > c.maxRangeDays {
		days = c.maxRangeDays
	}

	market, err := c.resolveMarket(ctx, ref, true)
	if err != nil {
		return nil, err
	}
	token, err := market.HistoryToken()
	if err != nil {
		return nil, err
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	params := url.Values{}
	params.Set("market", token)
	params.Set("startTs", strconv.FormatInt(start.Unix(), 10))
	params.Set("endTs", strconv.FormatInt(end.Unix(), 10))
	params.Set("fidelity", strconv.Itoa(c.fidelity))

	body, err := c.doGet(ctx, c.clobHost+"/prices-history?"+params.Encode(), true)
	if err != nil {
		return nil, fmt.Errorf("polymarket: get price history for %s: %w", ref, err)
	}

	var hist APIPriceHistory
	if err := json.Unmarshal(body, &hist); err != nil {
		return nil, fmt.Errorf("%w: decode price history: %v", domain.ErrMalformedResponse, err)
	}

	return hist.History, nil
}

// resolveMarket performs the two-hop lookup: event by slug, then market by
// id. paced selects whether the governor spacing applies (sequential history
// path) or not (concurrent price fan-out).
func (c *Client) resolveMarket(ctx context.Context, ref string, paced bool) (APIMarket, error) {
	slug := slugFromRef(ref)
	if slug == "" {
		return APIMarket{}, fmt.Errorf("%w: empty reference", domain.ErrMarketNotFound)
	}

	params := url.Values{}
	params.Set("slug", slug)

	body, err := c.doGet(ctx, c.gammaHost+"/events?"+params.Encode(), paced)
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket: get event %s: %w", slug, err)
	}

	var events []APIEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return APIMarket{}, fmt.Errorf("%w: decode events: %v", domain.ErrMalformedResponse, err)
	}
	if len(events) == 0 || len(events[0].Markets) == 0 {
		return APIMarket{}, fmt.Errorf("%w: slug=%s", domain.ErrMarketNotFound, slug)
	}

	marketID := events[0].Markets[0].ID

	body, err = c.doGet(ctx, c.gammaHost+"/markets/"+url.PathEscape(marketID), paced)
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket: get market %s: %w", marketID, err)
	}

	var market APIMarket
	if err := json.Unmarshal(body, &market); err != nil {
		return APIMarket{}, fmt.Errorf("%w: decode market: %v", domain.ErrMalformedResponse, err)
	}

	return market, nil
}

// slugFromRef extracts the event slug from an external reference, which may
// be a full event URL or a bare slug.
func slugFromRef(ref string) string {
	ref = strings.TrimSpace(strings.TrimRight(ref, "/"))
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	// Drop query fragments from pasted URLs.
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return ref
}

// doGet sends an unauthenticated GET request.
func (c *Client) doGet(ctx context.Context, fullURL string, paced bool) ([]byte, error) {
	if paced {
		if err := c.spacer.wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// spacer enforces a minimum delay between consecutive calls. Polymarket rate
// limits the CLOB history endpoint, so the sequential backfill path keeps at
// least min between outbound requests.
type spacer struct {
	mu   sync.Mutex
	min  time.Duration
	last time.Time
}

func (s *spacer) wait(ctx context.Context) error {
	s.mu.Lock()
	now := time.Now()
	next := s.last.Add(s.min)
	if next.After(now) {
		wait := next.Sub(now)
		s.last = next
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	s.last = now
	s.mu.Unlock()
	return nil
}
