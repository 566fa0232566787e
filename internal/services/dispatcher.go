// Package services – Dispatcher
//
// Dispatcher drives one conversation turn: it appends the user's message to
// the session thread, starts a run with the declared tools and polls the run
// until it completes. Each requires_action pause executes the requested tool
// calls exactly once and submits their outputs as one batch.
//
// Turns of the same user are serialized with a lock.Locker because a thread
// accepts only one active run. Every turn is bounded by MaxWait; on expiry
// the run is cancelled best-effort and ErrTurnTimeout is returned.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-inventory-bot/internal/agent"
	"github.com/tbourn/go-inventory-bot/internal/lock"
)

// Sessions resolves the thread for a user.
type Sessions interface {
	GetOrCreate(ctx context.Context, userID string) (*SessionHandle, error)
}

// Tools executes agent tool calls and declares them.
type Tools interface {
	Execute(ctx context.Context, userID string, call agent.ToolCall) (string, error)
	Specs() []agent.ToolSpec
}

// Defaults for Dispatcher timing.
const (
	DefaultPollInterval = time.Second
	DefaultMaxWait      = 2 * time.Minute
)

// Dispatcher runs conversation turns.
type Dispatcher struct {
	Agent    agent.Client
	Sessions Sessions
	Tools    Tools
	Locker   lock.Locker

	PollInterval time.Duration
	MaxWait      time.Duration
	Retry        RetryPolicy

	// Log defaults to the global zerolog logger.
	Log *zerolog.Logger
}

func (d *Dispatcher) logger() *zerolog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return &log.Logger
}

// Reply runs a full turn for userID and returns the agent's final message.
// Protocol failures abort the turn with ErrSessionUnavailable,
// ErrRemoteService, ErrRunFailed or ErrTurnTimeout.
func (d *Dispatcher) Reply(ctx context.Context, userID, text string) (reply string, err error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Reply",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	start := time.Now()
	defer func() {
		outcome := turnOutcome(err)
		dispatchTurns.WithLabelValues(outcome).Inc()
		dispatchLat.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
	}()

	if userID == "" {
		return "", ErrInvalidUser
	}

	maxWait := d.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	if d.Locker != nil {
		unlock, lerr := d.Locker.Lock(ctx, "turn:"+userID)
		if lerr != nil {
			d.logFailure(userID, "lock", lerr)
			return "", fmt.Errorf("%w: waiting for previous turn", ErrTurnTimeout)
		}
		defer unlock()
	}

	sess, err := d.Sessions.GetOrCreate(ctx, userID)
	if err != nil {
		d.logFailure(userID, "session", err)
		if !errors.Is(err, ErrSessionUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
		}
		return "", err
	}
	span.SetAttributes(attribute.String("thread.id", sess.ThreadID))

	if _, err := retryRemote(ctx, d.Retry, func() (struct{}, error) {
		return struct{}{}, d.Agent.AddUserMessage(ctx, sess.ThreadID, text)
	}); err != nil {
		return "", d.remoteFailure(ctx, userID, "add_message", err)
	}

	run, err := retryRemote(ctx, d.Retry, func() (*agent.Run, error) {
		return d.Agent.StartRun(ctx, sess.ThreadID, d.Tools.Specs())
	})
	if err != nil {
		return "", d.remoteFailure(ctx, userID, "start_run", err)
	}

	return d.drive(ctx, userID, sess.ThreadID, run)
}

// drive polls run until a terminal state.
func (d *Dispatcher) drive(ctx context.Context, userID, threadID string, run *agent.Run) (string, error) {
	interval := d.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Tool calls answered in this turn, by call id.
	answered := make(map[string]string)

	for {
		var err error
		switch {
		case run.Status == agent.StatusCompleted:
			msg, err := retryRemote(ctx, d.Retry, func() (string, error) {
				return d.Agent.LatestAssistantMessage(ctx, threadID, run.ID)
			})
			if err != nil {
				return "", d.remoteFailure(ctx, userID, "read_reply", err)
			}
			return msg, nil

		case run.Status.Failed():
			err := fmt.Errorf("%w: run %s ended %s", ErrRunFailed, run.ID, run.Status)
			if run.LastError != "" {
				err = fmt.Errorf("%w: %s", err, run.LastError)
			}
			d.logFailure(userID, "run", err)
			return "", err

		case run.Status == agent.StatusRequiresAction && len(run.ToolCalls) > 0:
			outputs := d.executeTools(ctx, userID, run.ToolCalls, answered)
			runID := run.ID
			run, err = retryRemote(ctx, d.Retry, func() (*agent.Run, error) {
				return d.Agent.SubmitToolOutputs(ctx, threadID, runID, outputs)
			})
			if err != nil {
				return "", d.remoteFailure(ctx, userID, "submit_tool_outputs", withRun(err, threadID, runID))
			}
			continue
		}

		select {
		case <-ctx.Done():
			return "", d.timeout(ctx, userID, threadID, run.ID)
		case <-ticker.C:
		}

		runID := run.ID
		run, err = retryRemote(ctx, d.Retry, func() (*agent.Run, error) {
			return d.Agent.GetRun(ctx, threadID, runID)
		})
		if err != nil {
			return "", d.remoteFailure(ctx, userID, "poll_run", withRun(err, threadID, runID))
		}
	}
}

// executeTools runs each call once. A call id seen earlier in the turn
// reuses its recorded output.
func (d *Dispatcher) executeTools(ctx context.Context, userID string, calls []agent.ToolCall, answered map[string]string) []agent.ToolOutput {
	outputs := make([]agent.ToolOutput, 0, len(calls))
	for _, call := range calls {
		out, done := answered[call.ID]
		if !done {
			var err error
			out, err = d.Tools.Execute(ctx, userID, call)
			if err != nil {
				d.logFailure(userID, "tool:"+call.Name, err)
			}
			answered[call.ID] = out
		}
		outputs = append(outputs, agent.ToolOutput{CallID: call.ID, Output: out})
	}
	return outputs
}

// remoteFailure maps a failed remote call. Deadline expiry becomes a
// timeout; everything else is ErrRemoteService.
func (d *Dispatcher) remoteFailure(ctx context.Context, userID, op string, err error) error {
	var rerr *runError
	if ctx.Err() != nil {
		if errors.As(err, &rerr) {
			return d.timeout(ctx, userID, rerr.threadID, rerr.runID)
		}
		d.logFailure(userID, op, err)
		return fmt.Errorf("%w: %s: %w", ErrTurnTimeout, op, ctx.Err())
	}
	d.logFailure(userID, op, err)
	return fmt.Errorf("%w: %s: %w", ErrRemoteService, op, err)
}

// timeout cancels the run best-effort and returns ErrTurnTimeout.
func (d *Dispatcher) timeout(ctx context.Context, userID, threadID, runID string) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.Agent.CancelRun(cctx, threadID, runID); err != nil {
		d.logFailure(userID, "cancel_run", err)
	}
	err := fmt.Errorf("%w: run %s", ErrTurnTimeout, runID)
	d.logFailure(userID, "run", err)
	return err
}

func (d *Dispatcher) logFailure(userID, op string, err error) {
	d.logger().Error().
		Str("user_id", userID).
		Str("op", op).
		Err(err).
		Msg("dispatch failure")
}

// runError carries the run being driven when a remote call fails.
type runError struct {
	threadID, runID string
	err             error
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

func withRun(err error, threadID, runID string) error {
	return &runError{threadID: threadID, runID: runID, err: err}
}

func turnOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSessionUnavailable):
		return "session_unavailable"
	case errors.Is(err, ErrTurnTimeout):
		return "timeout"
	case errors.Is(err, ErrRunFailed):
		return "run_failed"
	case errors.Is(err, ErrRemoteService):
		return "remote_error"
	default:
		return "error"
	}
}
