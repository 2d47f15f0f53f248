// Package source resolves dashboard data from an ordered list of steps.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/runnerr0/browsedash/internal/history"
)

// ErrUnavailable means a source could not be reached. The chain treats it
// as an ordinary fall-through.
var ErrUnavailable = errors.New("source unavailable")

// OriginNone marks the empty result returned when every step fails.
const OriginNone = "none"

// DefaultTimeout bounds a step that sets no timeout of its own.
const DefaultTimeout = 2 * time.Second

// Result is what a successful step yields.
type Result struct {
	Origin   string
	Visits   []history.NormalizedVisit
	LastSync time.Time
	ExtID    string
	// Bucket named the days in Visits. Nil means history.UTCDay.
	Bucket history.Bucketer
}

// Bucketer returns the day strategy the result was built with.
func (r *Result) Bucketer() history.Bucketer {
	if r.Bucket == nil {
		return history.UTCDay
	}
	return r.Bucket
}

// Step is one entry of the chain.
type Step struct {
	Name    string
	Timeout time.Duration
	Load    func(ctx context.Context) (*Result, error)
}

// Attempt records how one step went.
type Attempt struct {
	Name string
	Err  error
}

// Chain tries steps in order and returns the first success.
type Chain struct {
	steps []Step
	log   *slog.Logger
}

// NewChain builds a chain over steps, tried in the order given.
func NewChain(log *slog.Logger, steps ...Step) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{steps: steps, log: log}
}

// Resolve runs the steps. It never fails: an exhausted chain yields an
// empty result with origin "none". Attempts lists every step that ran.
func (c *Chain) Resolve(ctx context.Context) (*Result, []Attempt) {
	attempts := make([]Attempt, 0, len(c.steps))
	for _, p := range c.steps {
		res, err := c.run(ctx, p)
		attempts = append(attempts, Attempt{Name: p.Name, Err: err})
		if err == nil {
			if res.Origin == "" {
				res.Origin = p.Name
			}
			return res, attempts
		}
		if ctx.Err() != nil {
			break
		}
		c.log.Debug("source failed, trying next", "source", p.Name, "error", err)
	}
	return &Result{Origin: OriginNone, Visits: []history.NormalizedVisit{}}, attempts
}

func (c *Chain) run(ctx context.Context, p Step) (res *Result, err error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("source %s panicked: %v", p.Name, r)
		}
	}()

	res, err = p.Load(ctx)
	if err == nil && res == nil {
		err = ErrUnavailable
	}
	return res, err
}
