package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client with the OpenAI Assistants API.
type OpenAIClient struct {
	api         *openai.Client
	assistantID string
}

var _ Client = (*OpenAIClient)(nil)

// OpenAIOptions configures NewOpenAIClient.
type OpenAIOptions struct {
	APIKey      string
	AssistantID string
	BaseURL     string       // optional, e.g. a proxy; defaults to the public API
	HTTPClient  *http.Client // optional
}

// NewOpenAIClient builds a client bound to one assistant.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if u := strings.TrimSpace(opts.BaseURL); u != "" {
		cfg.BaseURL = strings.TrimRight(u, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &OpenAIClient{
		api:         openai.NewClientWithConfig(cfg),
		assistantID: opts.AssistantID,
	}
}

// CreateThread opens an empty thread and returns its id.
func (c *OpenAIClient) CreateThread(ctx context.Context) (string, error) {
	th, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", classify("create thread", err)
	}
	return th.ID, nil
}

// RetrieveThread confirms threadID still exists. A deleted thread yields
// ErrNotFound.
func (c *OpenAIClient) RetrieveThread(ctx context.Context, threadID string) (string, error) {
	th, err := c.api.RetrieveThread(ctx, threadID)
	if err != nil {
		return "", classify("retrieve thread", err)
	}
	return th.ID, nil
}

// AddUserMessage appends text to the thread as a user message.
func (c *OpenAIClient) AddUserMessage(ctx context.Context, threadID, text string) error {
	_, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	if err != nil {
		return classify("add message", err)
	}
	return nil
}

// StartRun starts a run of the configured assistant on threadID, exposing
// tools as function tools.
func (c *OpenAIClient) StartRun(ctx context.Context, threadID string, tools []ToolSpec) (*Run, error) {
	req := openai.RunRequest{AssistantID: c.assistantID}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	run, err := c.api.CreateRun(ctx, threadID, req)
	if err != nil {
		return nil, classify("start run", err)
	}
	return toRun(run), nil
}

// GetRun fetches the current state of a run.
func (c *OpenAIClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, classify("get run", err)
	}
	return toRun(run), nil
}

// SubmitToolOutputs answers the tool calls of a run in requires_action.
func (c *OpenAIClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	req := openai.SubmitToolOutputsRequest{ToolOutputs: make([]openai.ToolOutput, 0, len(outputs))}
	for _, o := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{ToolCallID: o.CallID, Output: o.Output})
	}
	run, err := c.api.SubmitToolOutputs(ctx, threadID, runID, req)
	if err != nil {
		return nil, classify("submit tool outputs", err)
	}
	return toRun(run), nil
}

// CancelRun asks the service to stop a run.
func (c *OpenAIClient) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := c.api.CancelRun(ctx, threadID, runID); err != nil {
		return classify("cancel run", err)
	}
	return nil
}

// LatestAssistantMessage returns the newest assistant message on the thread,
// restricted to runID when it is set. Text parts are joined by newlines. It
// returns ErrNotFound when the assistant has not replied.
func (c *OpenAIClient) LatestAssistantMessage(ctx context.Context, threadID, runID string) (string, error) {
	limit := 20
	order := "desc"
	var rid *string
	if runID != "" {
		rid = &runID
	}
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, rid)
	if err != nil {
		return "", classify("list messages", err)
	}
	for _, m := range list.Messages {
		if m.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		var parts []string
		for _, content := range m.Content {
			if content.Text != nil && content.Text.Value != "" {
				parts = append(parts, content.Text.Value)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	return "", fmt.Errorf("list messages: %w: no assistant reply on thread", ErrNotFound)
}

func toRun(r openai.Run) *Run {
	out := &Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   RunStatus(r.Status),
	}
	if r.RequiredAction != nil && r.RequiredAction.SubmitToolOutputs != nil {
		for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	if r.LastError != nil {
		out.LastError = r.LastError.Message
	}
	return out
}

// classify maps SDK errors onto the package error kinds by HTTP status.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500, status == 0:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrRejected, err)
	}
}
