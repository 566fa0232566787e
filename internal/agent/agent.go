// Package agent is the boundary to the remote conversational agent. The
// agent owns conversation threads and runs; the backend only appends user
// messages, starts runs with a set of declared tools, polls run state,
// answers tool calls, and reads the final assistant message.
//
// Client is the injected dependency used by the services layer. OpenAIClient
// implements it on top of the OpenAI Assistants API.
package agent

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the remote thread or run does not exist.
	ErrNotFound = errors.New("agent: not found")
	// ErrRejected indicates the remote service refused the request (4xx).
	// Retrying the same request will not help.
	ErrRejected = errors.New("agent: request rejected")
	// ErrUnavailable indicates a transient failure (network, 429, 5xx).
	ErrUnavailable = errors.New("agent: service unavailable")
)

// RunStatus is the remote run state.
type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCancelling     RunStatus = "cancelling"
	StatusCompleted      RunStatus = "completed"
	StatusFailed         RunStatus = "failed"
	StatusCancelled      RunStatus = "cancelled"
	StatusExpired        RunStatus = "expired"
	StatusIncomplete     RunStatus = "incomplete"
)

// Failed reports whether s is a terminal state other than completed.
func (s RunStatus) Failed() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusExpired, StatusIncomplete:
		return true
	}
	return false
}

// ToolCall is one function invocation requested by the agent.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON as emitted by the agent
}

// Run is a snapshot of a remote run.
type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	ToolCalls []ToolCall // set when Status == StatusRequiresAction
	LastError string
}

// ToolOutput answers a ToolCall.
type ToolOutput struct {
	CallID string
	Output string
}

// ToolSpec declares a function the agent may call. Parameters must marshal
// to a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  any
}

// Client is the remote agent API used by the dispatch loop.
type Client interface {
	CreateThread(ctx context.Context) (threadID string, err error)
	RetrieveThread(ctx context.Context, threadID string) (string, error)
	AddUserMessage(ctx context.Context, threadID, text string) error
	StartRun(ctx context.Context, threadID string, tools []ToolSpec) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	// LatestAssistantMessage returns the newest assistant-authored text
	// produced by the run.
	LatestAssistantMessage(ctx context.Context, threadID, runID string) (string, error)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
