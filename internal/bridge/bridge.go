// Package bridge is the panel's only way to reach the filesystem: it
// composes calls to named functions in a remote scripting engine, sends
// them through an Evaluator and decodes the string replies.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/internal/reply"
)

// Remote functions the scripting engine provides.
const (
	FnListSubdirectories = "listSubdirectories"
	FnListScriptFiles    = "listScriptFiles"
	FnReadNameRegistry   = "readNameRegistry"
	FnPathExists         = "pathExists"
	FnLaunchScript       = "launchScript"
)

// ErrOffline is returned when the remote host cannot be reached.
var ErrOffline = errors.New("bridge: host offline")

// Evaluator runs one expression in the scripting engine and returns its
// string result. Implementations must be safe for concurrent use; replies
// to concurrent calls may complete in any order.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string) (string, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, expression string) (string, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, expression string) (string, error) {
	return f(ctx, expression)
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// Quote renders s as a double-quoted script string literal.
func Quote(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}

// Expression renders a call of fn with string-literal arguments,
// e.g. listScriptFiles("C:\\Scripts\\Tools").
func Expression(fn string, args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return fn + "(" + strings.Join(quoted, ",") + ")"
}

// DefaultLaunchTimeout covers the host's default 30s script timeout plus
// the round trip.
const DefaultLaunchTimeout = 35 * time.Second

type sendOnceKey struct{}

// SendOnce marks ctx so an Evaluator delivers the expression at most once.
// Transports may still retry failures that prove the host never received it.
func SendOnce(ctx context.Context) context.Context {
	return context.WithValue(ctx, sendOnceKey{}, true)
}

// IsSendOnce reports whether ctx was marked by SendOnce.
func IsSendOnce(ctx context.Context) bool {
	once, _ := ctx.Value(sendOnceKey{}).(bool)
	return once
}

// Client wraps an Evaluator with typed helpers. Every call gets its own
// timeout and request ID. Launches use a separate, longer timeout.
type Client struct {
	eval          Evaluator
	timeout       time.Duration
	launchTimeout time.Duration
}

// NewClient returns a Client. A zero timeout means 10s. The launch timeout
// starts at DefaultLaunchTimeout, or timeout if that is longer.
func NewClient(eval Evaluator, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{eval: eval, timeout: timeout, launchTimeout: max(timeout, DefaultLaunchTimeout)}
}

// SetLaunchTimeout bounds LaunchScript calls. It should be at least the
// host's script timeout, or long scripts are cut short by the client.
func (c *Client) SetLaunchTimeout(d time.Duration) {
	if d > 0 {
		c.launchTimeout = d
	}
}

func (c *Client) LaunchTimeout() time.Duration { return c.launchTimeout }

// Call evaluates fn(args...) and returns the raw reply.
func (c *Client) Call(ctx context.Context, fn string, args ...string) (string, error) {
	return c.call(ctx, c.timeout, fn, args...)
}

func (c *Client) call(ctx context.Context, timeout time.Duration, fn string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = logging.WithRequestID(ctx, logging.NewRequestID())
	log := logging.WithContext(ctx)

	start := time.Now()
	raw, err := c.eval.Evaluate(ctx, Expression(fn, args...))
	elapsed := time.Since(start)
	metrics.RecordBridgeCall(fn, elapsed, err == nil)
	if err != nil {
		log.Warn("bridge call failed",
			logging.Function(fn),
			logging.Duration("elapsed", elapsed),
			logging.Err(err),
		)
		return "", fmt.Errorf("%s: %w", fn, err)
	}

	log.Debug("bridge call",
		logging.Function(fn),
		logging.Duration("elapsed", elapsed),
		logging.Int("reply_bytes", len(raw)),
	)
	return raw, nil
}

func malformed(fn, shape string, raw string) {
	metrics.RecordMalformedReply(shape)
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	logging.Debug("reply decoded to empty value",
		logging.Function(fn),
		logging.String("shape", shape),
		logging.String("reply", raw),
	)
}

// ListSubdirectories returns the immediate subdirectory names of path.
func (c *Client) ListSubdirectories(ctx context.Context, path string) ([]string, error) {
	return c.list(ctx, FnListSubdirectories, path)
}

// ListScriptFiles returns the script filenames directly under dir.
func (c *Client) ListScriptFiles(ctx context.Context, dir string) ([]string, error) {
	return c.list(ctx, FnListScriptFiles, dir)
}

func (c *Client) list(ctx context.Context, fn, arg string) ([]string, error) {
	raw, err := c.Call(ctx, fn, arg)
	if err != nil {
		return nil, err
	}
	items, ok := reply.DecodeList(raw)
	if !ok {
		malformed(fn, "list", raw)
	}
	return items, nil
}

// ReadNameRegistry returns the filename to label mapping stored at
// jsonPath. A missing or unreadable registry is an empty map.
func (c *Client) ReadNameRegistry(ctx context.Context, jsonPath string) (map[string]string, error) {
	raw, err := c.Call(ctx, FnReadNameRegistry, jsonPath)
	if err != nil {
		return map[string]string{}, err
	}
	m, ok := reply.DecodeMap(raw)
	if !ok {
		malformed(FnReadNameRegistry, "map", raw)
	}
	return m, nil
}

// PathExists reports whether path exists on the host.
func (c *Client) PathExists(ctx context.Context, path string) (bool, error) {
	raw, err := c.Call(ctx, FnPathExists, path)
	if err != nil {
		return false, err
	}
	exists, ok := reply.DecodeBool(raw)
	if !ok {
		malformed(FnPathExists, "bool", raw)
	}
	return exists, nil
}

// LaunchScript executes the script at path. The result is advisory.
// A launch has side effects, so it is sent at most once and bounded by the
// launch timeout rather than the call timeout.
func (c *Client) LaunchScript(ctx context.Context, path string) (string, error) {
	raw, err := c.call(SendOnce(ctx), c.launchTimeout, FnLaunchScript, path)
	if err != nil {
		return "", err
	}
	text, ok := reply.DecodeText(raw)
	if !ok {
		malformed(FnLaunchScript, "text", raw)
	}
	return text, nil
}
