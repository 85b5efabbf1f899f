// Package hybrid fetches result pages over plain HTTP and escalates to a
// headless renderer when the page looks blocked or script-rendered.
package hybrid

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/metrics"
)

// Fetcher tries Primary first and falls back to Renderer.
type Fetcher struct {
	primary  keyword.Fetcher
	renderer keyword.Fetcher
	detector *Detector
	logger   *zap.Logger
}

// New wires the two fetchers. Both are required.
func New(primary, renderer keyword.Fetcher, detector *Detector, logger *zap.Logger) (*Fetcher, error) {
	if primary == nil || renderer == nil {
		return nil, errors.New("hybrid fetcher requires primary and renderer")
	}
	if detector == nil {
		detector = NewDetector("", 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{primary: primary, renderer: renderer, detector: detector, logger: logger}, nil
}

// Fetch returns the plain body unless the detector asks for a rendered one.
// A primary transport error is also promoted; the renderer's error wins.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := f.primary.Fetch(ctx, url)
	reason := "fetch_error"
	if err == nil {
		var promote bool
		if reason, promote = f.detector.Promote(body); !promote {
			return body, nil
		}
	} else if ctx.Err() != nil {
		return nil, err
	}
	metrics.ObserveFetchPromotion(reason)
	f.logger.Debug("promoting fetch to renderer", zap.String("url", url), zap.String("reason", reason), zap.Error(err))
	rendered, rerr := f.renderer.Fetch(ctx, url)
	if rerr != nil {
		return nil, fmt.Errorf("rendered fetch (%s): %w", reason, rerr)
	}
	return rendered, nil
}
