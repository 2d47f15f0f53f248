package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/browsedash/internal/history"
	"github.com/runnerr0/browsedash/internal/logger"
)

func okStep(name string, visits ...history.NormalizedVisit) Step {
	return Step{Name: name, Load: func(context.Context) (*Result, error) {
		return &Result{Visits: visits}, nil
	}}
}

func failStep(name string, err error) Step {
	return Step{Name: name, Load: func(context.Context) (*Result, error) {
		return nil, err
	}}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	v := history.NormalizedVisit{Domain: "a.com", Date: "2026-02-20", Visits: 1, Title: "A"}
	chain := NewChain(logger.Discard(),
		failStep("server", ErrUnavailable),
		okStep("extension", v),
		okStep("cache"),
	)

	res, attempts := chain.Resolve(context.Background())
	assert.Equal(t, "extension", res.Origin)
	assert.Equal(t, []history.NormalizedVisit{v}, res.Visits)
	require.Len(t, attempts, 2)
	assert.ErrorIs(t, attempts[0].Err, ErrUnavailable)
	assert.NoError(t, attempts[1].Err)
}

func TestChain_StepOriginKept(t *testing.T) {
	chain := NewChain(logger.Discard(), Step{Name: "remote", Load: func(context.Context) (*Result, error) {
		return &Result{Origin: "server"}, nil
	}})
	res, _ := chain.Resolve(context.Background())
	assert.Equal(t, "server", res.Origin)
}

func TestChain_Exhausted(t *testing.T) {
	chain := NewChain(logger.Discard(),
		failStep("extension", ErrUnavailable),
		failStep("cache", errors.New("boom")),
	)

	res, attempts := chain.Resolve(context.Background())
	assert.Equal(t, OriginNone, res.Origin)
	assert.Empty(t, res.Visits)
	assert.NotNil(t, res.Visits)
	assert.Len(t, attempts, 2)
}

func TestChain_TimeoutFallsThrough(t *testing.T) {
	slow := Step{Name: "extension", Timeout: 20 * time.Millisecond, Load: func(ctx context.Context) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	chain := NewChain(logger.Discard(), slow, okStep("cache"))

	start := time.Now()
	res, attempts := chain.Resolve(context.Background())
	assert.Equal(t, "cache", res.Origin)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, attempts[0].Err, context.DeadlineExceeded)
}

func TestChain_NilResultTreatedAsUnavailable(t *testing.T) {
	chain := NewChain(logger.Discard(),
		Step{Name: "cache", Load: func(context.Context) (*Result, error) { return nil, nil }},
	)
	res, attempts := chain.Resolve(context.Background())
	assert.Equal(t, OriginNone, res.Origin)
	assert.ErrorIs(t, attempts[0].Err, ErrUnavailable)
}

func TestChain_PanicFallsThrough(t *testing.T) {
	chain := NewChain(logger.Discard(),
		Step{Name: "bad", Load: func(context.Context) (*Result, error) { panic("oops") }},
		okStep("cache"),
	)
	res, attempts := chain.Resolve(context.Background())
	assert.Equal(t, "cache", res.Origin)
	assert.Error(t, attempts[0].Err)
}

func TestChain_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	chain := NewChain(logger.Discard(),
		Step{Name: "extension", Load: func(ctx context.Context) (*Result, error) { return nil, ctx.Err() }},
		Step{Name: "cache", Load: func(context.Context) (*Result, error) { called = true; return &Result{}, nil }},
	)
	res, _ := chain.Resolve(ctx)
	assert.Equal(t, OriginNone, res.Origin)
	assert.False(t, called)
}
