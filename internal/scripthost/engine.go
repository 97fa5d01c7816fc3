// Package scripthost is the scripting side of the bridge: an embedded
// JavaScript engine with filesystem access that answers the panel's
// expressions, either in-process or over HTTP.
package scripthost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

// Sentinel is what the host answers when an expression throws. The panel
// decodes it to the empty value of whatever shape it expected.
const Sentinel = "EvalScript error."

var (
	// ErrTimeout is returned when an evaluation is interrupted by its
	// context or the script timeout.
	ErrTimeout = errors.New("scripthost: evaluation interrupted")
	// ErrUnknownFunction marks a call to a function the host does not define.
	ErrUnknownFunction = errors.New("scripthost: unknown function")
)

// Config configures an Engine.
type Config struct {
	ScriptExtension string        // filter for listScriptFiles, default ".jsx"
	ScriptTimeout   time.Duration // limit for launchScript, default 30s
	LegacyReplies   bool          // answer in the unversioned reply shapes
}

// Engine evaluates expressions in a single goja runtime. Calls are
// serialised; the runtime is not safe for concurrent use.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	vm  *goja.Runtime
	ctx context.Context // context of the evaluation in progress
}

// NewEngine creates an Engine with the bridge functions installed.
func NewEngine(cfg Config) *Engine {
	if cfg.ScriptExtension == "" {
		cfg.ScriptExtension = ".jsx"
	}
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = 30 * time.Second
	}

	e := &Engine{cfg: cfg, vm: goja.New(), ctx: context.Background()}
	e.install()
	return e
}

// Run evaluates expression and returns its result as a string. Script
// exceptions are returned as errors.
func (e *Engine) Run(ctx context.Context, expression string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.ctx = ctx
	defer func() { e.ctx = context.Background() }()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ErrTimeout)
		case <-done:
		}
	}()

	val, err := e.vm.RunString(expression)
	close(done)
	<-stopped
	e.vm.ClearInterrupt()

	metrics.RecordEvaluation(time.Since(start), err == nil)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		var exc *goja.Exception
		if errors.As(err, &exc) && strings.Contains(exc.Value().String(), "is not defined") {
			return "", fmt.Errorf("%w: %s", ErrUnknownFunction, exc.Value().String())
		}
		return "", err
	}
	return valueString(val), nil
}

// Evaluate satisfies bridge.Evaluator. Script errors become the Sentinel
// reply, as a real host would answer; only interruption is an error.
func (e *Engine) Evaluate(ctx context.Context, expression string) (string, error) {
	out, err := e.Run(ctx, expression)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, ErrTimeout) {
		return "", err
	}
	logging.WithContext(ctx).Warn("evaluation failed",
		logging.String("expression", expression),
		logging.Err(err),
	)
	return Sentinel, nil
}

func (e *Engine) reply(r protocol.Reply) string {
	if e.cfg.LegacyReplies {
		return r.Legacy()
	}
	return r.Encode()
}

func valueString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
