// Path: internal/oai/client.go
package oai

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"arxiv-harvester/internal/config"
	"arxiv-harvester/internal/domain"
)

// Client is an OAI-PMH harvesting client for the arXiv export endpoint.
// All requests go through the shared rate limiter, including retries, so a
// flaky remote can never be hit faster than the configured cadence.
type Client struct {
	baseURL          string
	client           *http.Client
	limiter          *Limiter
	maxRetries       int
	followResumption bool
	logger           *slog.Logger
}

// NewClient creates and configures a new Client.
func NewClient(cfg config.ArXivConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.RequestTimeoutDuration(),
		},
		limiter:          NewLimiter(cfg.RateLimitDelayDuration()),
		maxRetries:       cfg.MaxRetries,
		followResumption: cfg.FollowResumption,
		logger:           logger,
	}
}

// Limiter exposes the client's rate limiter so the orchestrator can insert
// pauses between units of work on the same cadence.
func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// ListRecords executes one ListRecords query and returns the decoded records.
// Empty set/from/until omit the corresponding parameter. A nil slice with a
// nil error means the query matched nothing; an error means the fetch or
// decode failed and nothing can be said about the remote state.
//
// By default only the first page is fetched, mirroring the behavior this
// harvester was ported from. With FollowResumption enabled the resumption
// token is followed until exhausted, accumulating records across pages.
func (c *Client) ListRecords(ctx context.Context, metadataPrefix, setSpec, fromDate, untilDate string) ([]domain.Record, error) {
	vals := url.Values{}
	vals.Set("verb", "ListRecords")
	vals.Set("metadataPrefix", metadataPrefix)
	if setSpec != "" {
		vals.Set("set", setSpec)
	}
	if fromDate != "" {
		vals.Set("from", fromDate)
	}
	if untilDate != "" {
		vals.Set("until", untilDate)
	}

	var records []domain.Record
	for {
		reqURL := c.baseURL + "?" + vals.Encode()
		c.logger.Info("Fetching records", slog.String("url", reqURL))

		body, err := c.fetchWithRetry(ctx, reqURL)
		if err != nil {
			return nil, err
		}

		page, token, err := decodeListRecords(body)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)

		if !c.followResumption || token == "" {
			return records, nil
		}

		// Continuation requests carry only the verb and the token.
		c.logger.Debug("Following resumption token", slog.Int("records_so_far", len(records)))
		vals = url.Values{}
		vals.Set("verb", "ListRecords")
		vals.Set("resumptionToken", token)
	}
}

// fetchWithRetry performs a rate-limited GET with up to maxRetries attempts.
// Transport failures and HTTP status >= 400 are transient; every attempt,
// retries included, waits on the limiter first.
func (c *Client) fetchWithRetry(ctx context.Context, reqURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.fetch(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("Request failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.maxRetries),
			slog.String("error", err.Error()),
		)
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", c.maxRetries, lastErr)
}

func (c *Client) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// decodeListRecords parses a ListRecords response body into domain records
// and the resumption token, if any. Records without an identifier are
// dropped; unrecognized elements are ignored.
func decodeListRecords(body []byte) ([]domain.Record, string, error) {
	var res listRecordsResponse
	if err := xml.Unmarshal(body, &res); err != nil {
		return nil, "", fmt.Errorf("failed to parse XML response: %w", err)
	}

	if res.Error != nil {
		if res.Error.Code == errNoRecordsMatch {
			return nil, "", nil
		}
		return nil, "", res.Error
	}

	var records []domain.Record
	for _, xr := range res.ListRecords.Records {
		if xr.Header.Identifier == "" {
			continue
		}
		records = append(records, domain.Record{
			Identifier:  xr.Header.Identifier,
			Datestamp:   xr.Header.Datestamp,
			SetSpecs:    xr.Header.SetSpecs,
			Creators:    xr.Metadata.DC.Creators,
			Dates:       xr.Metadata.DC.Dates,
			Description: lastOrEmpty(xr.Metadata.DC.Descriptions),
			Identifiers: xr.Metadata.DC.Identifiers,
			Subjects:    xr.Metadata.DC.Subjects,
			Titles:      xr.Metadata.DC.Titles,
			Type:        lastOrEmpty(xr.Metadata.DC.Types),
		})
	}
	return records, res.ListRecords.ResumptionToken, nil
}

func lastOrEmpty(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}
