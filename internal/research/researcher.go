// Package research looks up supporting sources for Bridge Story claims.
package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bridgefund/internal/logging"
)

// Source is a normalized search hit.
type Source struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Config configures a Researcher.
type Config struct {
	Enabled            bool
	BaseURL            string
	MaxResultsPerClaim int
	Concurrency        int
	Timeout            time.Duration
}

// Researcher queries a DuckDuckGo-compatible HTML search endpoint, one query
// per claim.
type Researcher struct {
	enabled     bool
	baseURL     string
	maxPerClaim int
	concurrency int
	httpClient  *http.Client
}

// New creates a Researcher, filling zero fields with defaults.
func New(cfg Config) *Researcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://html.duckduckgo.com/html/"
	}
	if cfg.MaxResultsPerClaim <= 0 {
		cfg.MaxResultsPerClaim = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Researcher{
		enabled:     cfg.Enabled,
		baseURL:     cfg.BaseURL,
		maxPerClaim: cfg.MaxResultsPerClaim,
		concurrency: cfg.Concurrency,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether lookups are performed.
func (r *Researcher) Enabled() bool {
	return r.enabled
}

// Sources searches every non-blank claim and returns the combined results in
// claim order with duplicate URLs removed. A claim whose search fails is
// logged and skipped. When research is disabled the result is empty.
func (r *Researcher) Sources(ctx context.Context, claims []string) ([]Source, error) {
	if !r.enabled {
		logging.ResearchDebug("research disabled, skipping %d claims", len(claims))
		return []Source{}, nil
	}

	start := time.Now()
	perClaim := make([][]Source, len(claims))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.concurrency)

	for i, claim := range claims {
		claim = strings.TrimSpace(claim)
		if claim == "" {
			continue
		}
		eg.Go(func() error {
			results, err := r.search(egCtx, claim)
			if err != nil {
				logging.ResearchWarn("search failed for claim %q: %v", truncate(claim, 60), err)
				return nil
			}
			mu.Lock()
			perClaim[i] = results
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	out := []Source{}
	for _, results := range perClaim {
		for _, s := range results {
			if seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			out = append(out, s)
		}
	}

	logging.Audit().ResearchLookup(len(claims), len(out), time.Since(start))
	return out, nil
}

func (r *Researcher) search(ctx context.Context, query string) ([]Source, error) {
	u, err := url.Parse(r.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; bridgefund-research/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	results, err := parseResults(string(body), r.maxPerClaim)
	if err != nil {
		return nil, err
	}
	logging.ResearchDebug("query %q returned %d results", truncate(query, 60), len(results))
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
