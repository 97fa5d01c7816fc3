package scripthost

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/studiokit/internal/bridge"
	"github.com/fruitsalade/studiokit/internal/reply"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// library builds:
//
//	root/
//	  descriptions.json
//	  Tools/  a.jsx  B.JSX  notes.txt  nested/
//	  .git/
//	  Empty/
func library(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "descriptions.json"), `{"a.jsx":"Alpha","count":3}`)
	writeFile(t, filepath.Join(root, "Tools", "a.jsx"), `"ran " + scriptPath`)
	writeFile(t, filepath.Join(root, "Tools", "B.JSX"), `1+1`)
	writeFile(t, filepath.Join(root, "Tools", "notes.txt"), "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Tools", "nested"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Empty"), 0o755))
	return root
}

func eval(t *testing.T, e *Engine, fn string, args ...string) string {
	t.Helper()
	out, err := e.Run(context.Background(), bridge.Expression(fn, args...))
	require.NoError(t, err)
	return out
}

func TestEngineFunctions(t *testing.T) {
	root := library(t)

	for _, legacy := range []bool{false, true} {
		name := "envelope"
		if legacy {
			name = "legacy"
		}
		t.Run(name, func(t *testing.T) {
			e := NewEngine(Config{LegacyReplies: legacy})

			dirs := reply.List(eval(t, e, bridge.FnListSubdirectories, root))
			assert.Equal(t, []string{".git", "Empty", "Tools"}, dirs)

			files := reply.List(eval(t, e, bridge.FnListScriptFiles, filepath.Join(root, "Tools")))
			assert.Equal(t, []string{"B.JSX", "a.jsx"}, files)

			assert.Empty(t, reply.List(eval(t, e, bridge.FnListScriptFiles, filepath.Join(root, "Empty"))))
			assert.Empty(t, reply.List(eval(t, e, bridge.FnListSubdirectories, filepath.Join(root, "missing"))))

			reg := reply.Map(eval(t, e, bridge.FnReadNameRegistry, filepath.Join(root, "descriptions.json")))
			assert.Equal(t, map[string]string{"a.jsx": "Alpha"}, reg)
			assert.Empty(t, reply.Map(eval(t, e, bridge.FnReadNameRegistry, filepath.Join(root, "nope.json"))))

			assert.True(t, reply.Bool(eval(t, e, bridge.FnPathExists, root)))
			assert.False(t, reply.Bool(eval(t, e, bridge.FnPathExists, filepath.Join(root, "missing"))))
			assert.False(t, reply.Bool(eval(t, e, bridge.FnPathExists, "")))
		})
	}
}

func TestEngineNamesWithSpacesSurviveLegacyList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "my tool.jsx"), "1")
	writeFile(t, filepath.Join(root, "50%.jsx"), "1")

	e := NewEngine(Config{LegacyReplies: true})
	raw := eval(t, e, bridge.FnListScriptFiles, root)
	assert.Equal(t, []string{"50%.jsx", "my tool.jsx"}, reply.List(raw))
}

func TestEngineQuotedPaths(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, `odd "quoted" dir`)
	writeFile(t, filepath.Join(dir, "x.jsx"), "1")

	e := NewEngine(Config{})
	assert.True(t, reply.Bool(eval(t, e, bridge.FnPathExists, dir)))
	assert.Equal(t, []string{"x.jsx"}, reply.List(eval(t, e, bridge.FnListScriptFiles, dir)))
}

func TestEngineCustomExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.js"), "1")
	writeFile(t, filepath.Join(root, "b.jsx"), "1")

	e := NewEngine(Config{ScriptExtension: ".js"})
	assert.Equal(t, []string{"a.js"}, reply.List(eval(t, e, bridge.FnListScriptFiles, root)))
}

func TestEngineLaunchScript(t *testing.T) {
	root := library(t)
	e := NewEngine(Config{})

	path := filepath.Join(root, "Tools", "a.jsx")
	text, ok := reply.DecodeText(eval(t, e, bridge.FnLaunchScript, path))
	require.True(t, ok)
	assert.Equal(t, "ran "+path, text)

	text, ok = reply.DecodeText(eval(t, e, bridge.FnLaunchScript, filepath.Join(root, "gone.jsx")))
	require.True(t, ok)
	assert.Contains(t, text, "error:")
}

func TestEngineLaunchScriptTimeout(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "spin.jsx")
	writeFile(t, path, "for(;;){}")

	e := NewEngine(Config{ScriptTimeout: 50 * time.Millisecond})
	text, ok := reply.DecodeText(eval(t, e, bridge.FnLaunchScript, path))
	require.True(t, ok)
	assert.Contains(t, text, "interrupted")

	// The engine is still usable afterwards.
	out, err := e.Run(context.Background(), "1+1")
	require.NoError(t, err)
	assert.Equal(t, "2", out)
}

func TestEngineRunErrors(t *testing.T) {
	e := NewEngine(Config{})

	_, err := e.Run(context.Background(), `noSuchFunction("x")`)
	assert.ErrorIs(t, err, ErrUnknownFunction)

	_, err = e.Run(context.Background(), `throw new Error("boom")`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownFunction)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = e.Run(ctx, "for(;;){}")
	assert.ErrorIs(t, err, ErrTimeout)

	out, err := e.Run(context.Background(), "undefined")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestEngineEvaluateSentinel(t *testing.T) {
	e := NewEngine(Config{})

	out, err := e.Evaluate(context.Background(), `noSuchFunction("x")`)
	require.NoError(t, err)
	assert.Equal(t, Sentinel, out)
	assert.True(t, reply.IsSentinel(out))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = e.Evaluate(ctx, "for(;;){}")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestEngineThroughBridgeClient(t *testing.T) {
	root := library(t)
	c := bridge.NewClient(NewEngine(Config{}), time.Second)
	ctx := context.Background()

	dirs, err := c.ListSubdirectories(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{".git", "Empty", "Tools"}, dirs)

	exists, err := c.PathExists(ctx, root)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLaunchOutlivesCallTimeout(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "long.jsx")
	writeFile(t, path, `var end = Date.now() + 300; while (Date.now() < end) {} "finished"`)

	c := bridge.NewClient(NewEngine(Config{ScriptTimeout: 5 * time.Second}), 50*time.Millisecond)
	c.SetLaunchTimeout(5 * time.Second)

	text, err := c.LaunchScript(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "finished", text)
}
