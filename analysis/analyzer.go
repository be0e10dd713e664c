package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aidflow-backend/apperr"
	"aidflow-backend/logger"
	"aidflow-backend/metrics"
	"aidflow-backend/prompt"
)

const (
	DefaultTimeout        = 45 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
)

// Analyzer wraps a Provider with a per-call timeout and bounded retry.
// Only transport failures and retryable provider statuses are retried;
// a parsed reply is final whatever its score.
type Analyzer struct {
	provider       Provider
	timeout        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	log            logger.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMaxAttempts sets the total number of attempts.
func WithMaxAttempts(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithInitialBackoff sets the delay before the first retry. It doubles
// after every retry.
func WithInitialBackoff(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if d >= 0 {
			a.initialBackoff = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.log = l
	}
}

// NewAnalyzer creates an analyzer for provider.
func NewAnalyzer(provider Provider, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		provider:       provider,
		timeout:        DefaultTimeout,
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		log:            logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the wrapped provider's name.
func (a *Analyzer) Provider() string {
	return a.provider.Name()
}

// Analyze sends p and interprets the reply. It returns
// apperr.ErrAnalysisTimeout when an attempt exceeds the timeout and
// apperr.ErrAnalysisUnavailable when the provider cannot be reached.
// An unparseable reply is not an error: it comes back with
// OutcomeUnparseable and a nil score.
func (a *Analyzer) Analyze(ctx context.Context, p prompt.Prompt) (*Analysis, error) {
	name := a.provider.Name()
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	backoff := a.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, backoff); err != nil {
				metrics.AnalysisRequests.WithLabelValues(name, "unavailable").Inc()
				return nil, fmt.Errorf("%w: %v", apperr.ErrAnalysisUnavailable, err)
			}
			backoff *= 2
		}

		metrics.AnalysisAttempts.WithLabelValues(name).Inc()
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		raw, err := a.provider.Generate(callCtx, p)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			analysis := Interpret(raw)
			analysis.Provider = name
			metrics.AnalysisRequests.WithLabelValues(name, string(analysis.Outcome)).Inc()
			if analysis.Outcome != OutcomeParsed {
				a.log.Warn("analysis reply did not match the result schema", map[string]interface{}{
					"provider": name,
					"outcome":  string(analysis.Outcome),
					"error":    analysis.ParseError.Error(),
				})
				a.log.Debug("raw analysis reply", map[string]interface{}{"raw": raw})
			}
			return analysis, nil
		}

		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			metrics.AnalysisRequests.WithLabelValues(name, "timeout").Inc()
			return nil, fmt.Errorf("%w: %s did not answer within %s", apperr.ErrAnalysisTimeout, name, a.timeout)
		}
		if ctx.Err() != nil {
			metrics.AnalysisRequests.WithLabelValues(name, "unavailable").Inc()
			return nil, fmt.Errorf("%w: %v", apperr.ErrAnalysisUnavailable, ctx.Err())
		}

		lastErr = err
		if !retryable(err) {
			break
		}
		a.log.Warn("analysis attempt failed", map[string]interface{}{
			"provider": name,
			"attempt":  attempt,
			"error":    err.Error(),
		})
	}

	metrics.AnalysisRequests.WithLabelValues(name, "unavailable").Inc()
	return nil, fmt.Errorf("%w: %v", apperr.ErrAnalysisUnavailable, lastErr)
}

func retryable(err error) bool {
	if errors.Is(err, apperr.ErrConfigurationMissing) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
