package service

import (
	"context"
	"sync"
	"time"

	"github.com/agrisense/crop-advisory-service/internal/models"
	"github.com/agrisense/crop-advisory-service/internal/observability"
)

// inFlightAnalysis tracks one upstream aggregation that later callers wait on.
type inFlightAnalysis struct {
	done   chan struct{}
	result models.AnalysisResult
	err    error
}

// analysisCoalescer collapses concurrent analyses of the same coordinates into
// a single upstream aggregation. The external providers rate-limit aggressively,
// so duplicate in-flight work is never worth it.
type analysisCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightAnalysis
	timeout  time.Duration
}

func newAnalysisCoalescer(timeout time.Duration) *analysisCoalescer {
	return &analysisCoalescer{
		inFlight: make(map[string]*inFlightAnalysis),
		timeout:  timeout,
	}
}

// GetOrDo runs fn for key, or waits for the in-flight run if one exists.
// Waiters respect context cancellation and the coalescer timeout; the run
// itself is never cancelled by a waiter giving up.
func (c *analysisCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.AnalysisResult, error)) (models.AnalysisResult, error) {
	c.mu.Lock()
	if req, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		observability.AnalyzeCoalescedTotal.Inc()

		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		select {
		case <-req.done:
			return req.result, req.err
		case <-waitCtx.Done():
			return models.AnalysisResult{}, waitCtx.Err()
		}
	}

	req := &inFlightAnalysis{done: make(chan struct{})}
	c.inFlight[key] = req
	c.mu.Unlock()

	req.result, req.err = fn()
	close(req.done)

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()

	return req.result, req.err
}
