package polymarket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Goodheart-Labs/israel-iran-dashboard-sub000/internal/domain"
)

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent represents an event as returned by the Gamma API. An event groups
// one or more related markets; the first market carries the headline
// probability the dashboard tracks.
type APIEvent struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Markets []APIMarket `json:"markets"`
}

// APIMarket represents a market as returned by the Gamma API. OutcomePrices
// and ClobTokenIds are JSON arrays double-encoded as strings, e.g.
// "[\"0.42\", \"0.58\"]".
type APIMarket struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIds  string `json:"clobTokenIds"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
}

// YesPrice extracts the first outcome price as a probability fraction.
// A missing or unparsable field is a "no data" condition, reported as
// domain.ErrMalformedResponse.
func (m *APIMarket) YesPrice() (float64, error) {
	var prices []string
	if m.OutcomePrices == "" {
		return 0, fmt.Errorf("%w: market %s has no outcomePrices", domain.ErrMalformedResponse, m.ID)
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return 0, fmt.Errorf("%w: decode outcomePrices for market %s: %v", domain.ErrMalformedResponse, m.ID, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: market %s has empty outcomePrices", domain.ErrMalformedResponse, m.ID)
	}
	p, err := strconv.ParseFloat(prices[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse outcome price %q: %v", domain.ErrMalformedResponse, prices[0], err)
	}
	return p, nil
}

// HistoryToken extracts the CLOB token id used for prices-history queries.
func (m *APIMarket) HistoryToken() (string, error) {
	var tokens []string
	if m.ClobTokenIds == "" {
		return "", fmt.Errorf("%w: market %s has no clobTokenIds", domain.ErrNoHistoryToken, m.ID)
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIds), &tokens); err != nil {
		return "", fmt.Errorf("%w: decode clobTokenIds for market %s: %v", domain.ErrNoHistoryToken, m.ID, err)
	}
	if len(tokens) == 0 || tokens[0] == "" {
		return "", fmt.Errorf("%w: market %s has empty clobTokenIds", domain.ErrNoHistoryToken, m.ID)
	}
	return tokens[0], nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIPriceHistory is the response of the CLOB prices-history endpoint.
type APIPriceHistory struct {
	History []domain.RawPoint `json:"history"`
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
