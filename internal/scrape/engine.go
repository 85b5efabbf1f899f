// Package scrape runs the two-pass search-and-retry count extraction for a batch.
package scrape

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// Defaults for the scrape schedule.
const (
	DefaultBaseURL      = "https://www.google.com"
	DefaultDelay        = 2 * time.Second
	DefaultRetryDelay   = 5 * time.Second
	DefaultQueryTimeout = 20 * time.Second
	DefaultRetryTimeout = 30 * time.Second
)

// Config controls query construction and pacing.
type Config struct {
	BaseURL      string
	Selector     string
	Delay        time.Duration
	RetryDelay   time.Duration
	QueryTimeout time.Duration
	RetryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Selector == "" {
		c.Selector = DefaultSelector
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = DefaultRetryTimeout
	}
	return c
}

// Pauser sleeps between queries.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser waits on a timer or until ctx is done.
type TimerPauser struct{}

// Pause blocks for delay.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Stats summarizes one Run.
type Stats struct {
	Queries   int
	Retried   int
	Recovered int
	Zeroed    int
}

// Engine issues the intitle/allintitle queries for a batch.
type Engine struct {
	fetcher keyword.Fetcher
	pauser  Pauser
	cfg     Config
	logger  *zap.Logger
}

// NewEngine wires an engine. A nil pauser uses TimerPauser.
func NewEngine(fetcher keyword.Fetcher, pauser Pauser, cfg Config, logger *zap.Logger) *Engine {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{fetcher: fetcher, pauser: pauser, cfg: cfg.withDefaults(), logger: logger}
}

// QueryURL builds the search URL for one query.
func QueryURL(base string, st keyword.SearchType, kw string) string {
	q := string(st) + `:"` + kw + `"`
	return strings.TrimRight(base, "/") + "/search?q=" + url.QueryEscape(q)
}

// Run returns exactly two results per keyword, ordered by keyword position
// then search type. Queries that fail both passes are recorded with count 0.
func (e *Engine) Run(ctx context.Context, keywords []string) ([]keyword.KeywordResult, Stats) {
	results := make([]keyword.KeywordResult, 0, len(keywords)*len(keyword.SearchTypes))
	var (
		stats   Stats
		retries RetryQueue
	)
	for i, kw := range keywords {
		for j, st := range keyword.SearchTypes {
			slot := i*len(keyword.SearchTypes) + j
			results = append(results, keyword.KeywordResult{Keyword: kw, SearchType: st})
			if slot > 0 {
				e.pauser.Pause(ctx, e.cfg.Delay)
			}
			item := WorkItem{Keyword: kw, SearchType: st, Attempt: 1, slot: slot}
			count, err := e.query(ctx, item, e.cfg.QueryTimeout)
			stats.Queries++
			if err != nil {
				e.logger.Debug("query failed; queued for retry",
					zap.String("keyword", kw), zap.String("search_type", string(st)), zap.Error(err))
				retries.Push(item)
				continue
			}
			results[slot].Count = count
		}
	}

	stats.Retried = retries.Len()
	for {
		item, ok := retries.Pop()
		if !ok {
			break
		}
		e.pauser.Pause(ctx, e.cfg.RetryDelay)
		item.Attempt++
		count, err := e.query(ctx, item, e.cfg.RetryTimeout)
		stats.Queries++
		if err != nil {
			e.logger.Warn("query failed after retry; recording zero",
				zap.String("keyword", item.Keyword), zap.String("search_type", string(item.SearchType)), zap.Error(err))
			stats.Zeroed++
			continue
		}
		stats.Recovered++
		results[item.slot].Count = count
	}
	return results, stats
}

func (e *Engine) query(ctx context.Context, item WorkItem, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &keyword.ExtractionError{Keyword: item.Keyword, SearchType: item.SearchType, Err: err}
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	body, err := e.fetcher.Fetch(qctx, QueryURL(e.cfg.BaseURL, item.SearchType, item.Keyword))
	if err == nil {
		var count int
		count, err = ExtractFromHTML(body, e.cfg.Selector)
		if err == nil {
			return count, nil
		}
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = errors.Join(errors.New("query timed out"), err)
	}
	return 0, &keyword.ExtractionError{Keyword: item.Keyword, SearchType: item.SearchType, Err: err}
}
