// Package selector races interchangeable backends and commits the first
// viable response.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/valpere/news2docx/internal/backend"
)

// State is the lifecycle of one race.
type State int

const (
	Dispatched State = iota
	Succeeded
	AllFailed
)

func (s State) String() string {
	switch s {
	case Dispatched:
		return "dispatched"
	case Succeeded:
		return "succeeded"
	case AllFailed:
		return "all_failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrNoCandidates is returned when a race is started with an empty list.
var ErrNoCandidates = errors.New("no candidate backends")

// Caller performs one logical backend call. *backend.Client implements it.
type Caller interface {
	Call(ctx context.Context, id backend.Identity, req backend.Request) (*backend.Response, error)
}

// Validator decides whether a response is usable. A nil Validator accepts
// every successful response.
type Validator func(resp *backend.Response) error

// Failure records why one candidate did not win.
type Failure struct {
	Identity backend.Identity
	Err      error
}

// Result is the outcome of a race.
type Result struct {
	State    State
	Winner   backend.Identity
	Response *backend.Response
	Failures []Failure
	Elapsed  time.Duration
}

// AllFailedError lists the failure of every candidate.
type AllFailedError struct {
	Failures []Failure
}

func (e *AllFailedError) Error() string {
	if len(e.Failures) == 0 {
		return "all backends failed"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Identity.Name, f.Err))
	}
	return fmt.Sprintf("all %d backends failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *AllFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

type Selector struct {
	caller Caller
	fanout int
	logger *slog.Logger
}

// New returns a selector that runs at most fanout candidates at once.
// fanout <= 0 races every candidate together.
func New(caller Caller, fanout int, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{caller: caller, fanout: fanout, logger: logger}
}

type completion struct {
	id   backend.Identity
	resp *backend.Response
	err  error
}

// Race dispatches req to every candidate and returns the first response
// that completes successfully and passes validate. The winner is chosen by
// completion order, never by list position. Once a winner is committed the
// remaining calls are cancelled and their results are discarded.
//
// candidates is a snapshot; the selector never reads shared backend state.
func (s *Selector) Race(ctx context.Context, candidates []backend.Identity, req backend.Request, validate Validator) (*Result, error) {
	start := time.Now()
	if len(candidates) == 0 {
		return &Result{State: AllFailed}, &AllFailedError{Failures: []Failure{{Err: ErrNoCandidates}}}
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fanout := s.fanout
	if fanout <= 0 || fanout > len(candidates) {
		fanout = len(candidates)
	}
	sem := semaphore.NewWeighted(int64(fanout))

	// Buffered so that stragglers never block after the committer returns.
	done := make(chan completion, len(candidates))
	for _, id := range candidates {
		go func(id backend.Identity) {
			if err := sem.Acquire(raceCtx, 1); err != nil {
				done <- completion{id: id, err: err}
				return
			}
			defer sem.Release(1)

			resp, err := s.caller.Call(raceCtx, id, req)
			done <- completion{id: id, resp: resp, err: err}
		}(id)
	}

	result := &Result{State: Dispatched}
	for range candidates {
		c := <-done
		err := c.err
		if err == nil && validate != nil {
			err = validate(c.resp)
		}
		if err != nil {
			s.logger.Debug("candidate rejected", "backend", c.id.Name, "stage", req.Stage, "error", err)
			result.Failures = append(result.Failures, Failure{Identity: c.id, Err: err})
			continue
		}

		cancel()
		result.State = Succeeded
		result.Winner = c.id
		result.Response = c.resp
		result.Elapsed = time.Since(start)
		s.logger.Debug("race won",
			"backend", c.id.Name, "stage", req.Stage, "elapsed", result.Elapsed, "rejected", len(result.Failures))
		return result, nil
	}

	result.State = AllFailed
	result.Elapsed = time.Since(start)
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("race cancelled: %w", err)
	}
	return result, &AllFailedError{Failures: result.Failures}
}
