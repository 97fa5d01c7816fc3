package scripthost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dop251/goja"

	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

func (e *Engine) install() {
	e.vm.Set("listSubdirectories", e.listSubdirectories)
	e.vm.Set("listScriptFiles", e.listScriptFiles)
	e.vm.Set("readNameRegistry", e.readNameRegistry)
	e.vm.Set("pathExists", e.pathExists)
	e.vm.Set("launchScript", e.launchScript)
}

// listSubdirectories answers the immediate subdirectories of path, sorted.
// Symlinks to directories count. A missing path is an empty list.
func (e *Engine) listSubdirectories(path string) string {
	entries, err := os.ReadDir(path)
	if err != nil {
		return e.reply(protocol.ListReply(nil))
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(path, entry.Name())); err == nil && info.IsDir() {
				names = append(names, entry.Name())
			}
		}
	}
	sort.Strings(names)
	return e.reply(protocol.ListReply(names))
}

// listScriptFiles answers the names of regular files directly under dir
// whose extension matches the configured one, case-insensitively.
func (e *Engine) listScriptFiles(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return e.reply(protocol.ListReply(nil))
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), e.cfg.ScriptExtension) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return e.reply(protocol.ListReply(names))
}

// readNameRegistry answers the string entries of the JSON object at path,
// or an empty map when the file is missing or unparsable.
func (e *Engine) readNameRegistry(path string) string {
	entries := map[string]string{}
	data, err := os.ReadFile(path)
	if err == nil {
		var raw map[string]any
		if json.Unmarshal(data, &raw) == nil {
			for k, v := range raw {
				if s, ok := v.(string); ok {
					entries[k] = s
				}
			}
		}
	}
	return e.reply(protocol.MapReply(entries))
}

func (e *Engine) pathExists(path string) string {
	if path == "" {
		return e.reply(protocol.BoolReply(false))
	}
	_, err := os.Stat(path)
	return e.reply(protocol.BoolReply(err == nil))
}

// launchScript runs the file at path in a fresh runtime, bounded by the
// script timeout and the calling evaluation's context.
func (e *Engine) launchScript(path string) string {
	log := logging.WithContext(e.ctx).With(logging.String("script", path))

	src, err := os.ReadFile(path)
	if err != nil {
		metrics.RecordScriptLaunch(false)
		log.Warn("script not readable", logging.Err(err))
		return e.reply(protocol.TextReply(fmt.Sprintf("error: %v", err)))
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.ScriptTimeout)
	defer cancel()

	out, err := runScript(ctx, path, string(src))
	if err != nil {
		metrics.RecordScriptLaunch(false)
		log.Warn("script failed", logging.Err(err))
		return e.reply(protocol.TextReply(fmt.Sprintf("error: %v", err)))
	}

	metrics.RecordScriptLaunch(true)
	log.Info("script finished", logging.String("result", out))
	return e.reply(protocol.TextReply(out))
}

func runScript(ctx context.Context, path, src string) (string, error) {
	vm := goja.New()
	log := logging.WithContext(ctx).Sugar().With("script", filepath.Base(path))

	console := vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.String()
		}
		log.Info(args...)
		return goja.Undefined()
	})
	vm.Set("console", console)
	vm.Set("scriptPath", path)

	type result struct {
		val goja.Value
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		val, err := vm.RunScript(path, src)
		resultCh <- result{val, err}
	}()

	select {
	case <-ctx.Done():
		vm.Interrupt("timeout")
		<-resultCh
		return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}
		return valueString(res.val), nil
	}
}
