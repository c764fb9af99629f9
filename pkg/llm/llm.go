// Package llm defines the client LLM nodes call and the retry wrapper that
// turns a single-shot provider call into one.
package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/arbor/pkg/condition"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
)

// Client generates a response envelope for a rendered prompt.
type Client interface {
	Generate(ctx context.Context, node *domain.Node, prompt map[string]string, retry *domain.RetryPolicy, timeout *domain.Timeout) (map[string]any, error)
}

// CallFunc performs one provider call. The returned map is a response envelope;
// a truthy "error" key marks a failed attempt.
type CallFunc func(ctx context.Context, node *domain.Node, prompt map[string]string, timeout *domain.Timeout) (map[string]any, error)

// Option configures a RetryClient.
type Option func(*RetryClient)

// WithLogger sets the logger used to report failed attempts.
func WithLogger(logger *slog.Logger) Option {
	return func(c *RetryClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RetryClient retries a CallFunc according to the policy passed to Generate.
type RetryClient struct {
	call   CallFunc
	logger *slog.Logger
}

// NewClient wraps call with retry handling.
func NewClient(call CallFunc, opts ...Option) *RetryClient {
	c := &RetryClient{
		call:   call,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate calls the wrapped function up to retry.MaxAttempts times.
// A response without an error is returned immediately. On the last attempt the
// response or the error is returned as is. Backoff is slept between attempts.
func (c *RetryClient) Generate(ctx context.Context, node *domain.Node, prompt map[string]string, retry *domain.RetryPolicy, timeout *domain.Timeout) (map[string]any, error) {
	attempts, backoff := 1, 0.0
	if retry != nil {
		attempts, backoff = retry.Attempts(), retry.Backoff
	}

	for attempt := 1; ; attempt++ {
		resp, err := c.once(ctx, node, prompt, timeout)
		last := attempt >= attempts
		switch {
		case err != nil && last:
			return nil, err
		case err == nil && (!condition.Truthy(resp[domain.KeyError]) || last):
			return resp, nil
		}
		c.logger.Debug("llm attempt failed", "node_id", nodeID(node), "attempt", attempt, "error", err)

		if err := Sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

func (c *RetryClient) once(ctx context.Context, node *domain.Node, prompt map[string]string, timeout *domain.Timeout) (resp map[string]any, err error) {
	if timeout != nil && timeout.Seconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, Seconds(timeout.Seconds))
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("llm call panicked: %v", r)
		}
	}()
	return c.call(ctx, node, prompt, timeout)
}

// Sleep waits for the given number of seconds or until ctx is done.
func Sleep(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	t := time.NewTimer(Seconds(seconds))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Seconds converts fractional seconds into a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func nodeID(n *domain.Node) string {
	if n == nil {
		return ""
	}
	return n.ID
}

// Message is one chat message sent to a provider.
type Message struct {
	Role    string
	Content string
}

// PromptToMessages orders a rendered prompt as system, user, assistant and then
// the indexed messages[i]#role entries. Empty roles are skipped; an empty
// prompt yields a single empty user message.
func PromptToMessages(prompt map[string]string) []Message {
	var msgs []Message
	for _, role := range []string{"system", "user", "assistant"} {
		if content := prompt[role]; content != "" {
			msgs = append(msgs, Message{Role: role, Content: content})
		}
	}

	type indexed struct {
		index int
		msg   Message
	}
	var extra []indexed
	for key, content := range prompt {
		if i, role, ok := render.ParseMessageRole(key); ok {
			extra = append(extra, indexed{i, Message{Role: role, Content: content}})
		}
	}
	sort.SliceStable(extra, func(a, b int) bool {
		if extra[a].index != extra[b].index {
			return extra[a].index < extra[b].index
		}
		return extra[a].msg.Role < extra[b].msg.Role
	})
	for _, e := range extra {
		msgs = append(msgs, e.msg)
	}

	if len(msgs) == 0 {
		msgs = append(msgs, Message{Role: "user"})
	}
	return msgs
}

// Response builds the envelope providers return for a completion.
func Response(status int, raw any, text string) map[string]any {
	return domain.NewOutput(status, raw, text, nil, text)
}
