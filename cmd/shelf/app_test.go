package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/studiokit/internal/config"
	"github.com/fruitsalade/studiokit/internal/settings"
)

func testApp(t *testing.T) (*app, string) {
	t.Helper()
	root := filepath.ToSlash(t.TempDir())
	for rel, src := range map[string]string{
		"descriptions.json":   `{"build.jsx":"Build Everything"}`,
		"Export/build.jsx":    `"built " + scriptPath`,
		"Export/clean-up.jsx": `"cleaned"`,
		"Empty/readme.txt":    "",
	} {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Settings.Backend = "sqlite"
	cfg.Settings.Path = filepath.Join(cfg.DataDir, "settings.db")

	a, err := open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a, root
}

func TestSetRootThenList(t *testing.T) {
	ctx := context.Background()
	a, root := testApp(t)

	var out bytes.Buffer
	require.NoError(t, a.cmdGetRoot(ctx, &out))
	assert.Contains(t, out.String(), "Set your scripts folder")

	out.Reset()
	require.NoError(t, a.cmdSetRoot(ctx, &out, []string{root}))
	assert.Contains(t, out.String(), "Saved scripts folder "+root+"\n")
	saved, err := a.kv.Get(ctx, settings.KeyRootDirectory)
	require.NoError(t, err)
	assert.Equal(t, root, saved)

	out.Reset()
	require.NoError(t, a.cmdList(ctx, &out))
	s := out.String()
	assert.Contains(t, s, "[Empty]")
	assert.Contains(t, s, "No files found in this folder.")
	assert.Contains(t, s, "[Export]")
	assert.Contains(t, s, "Build Everything")
	assert.Contains(t, s, "Clean Up")

	out.Reset()
	require.NoError(t, a.cmdGetRoot(ctx, &out))
	assert.Contains(t, out.String(), "(saved)")
}

func TestSetRootRejectsInvalidPath(t *testing.T) {
	a, _ := testApp(t)
	var out bytes.Buffer
	assert.Error(t, a.cmdSetRoot(context.Background(), &out, []string{"C:/bad|path"}))

	out.Reset()
	require.NoError(t, a.cmdSetRoot(context.Background(), &out, []string{"/definitely/not/here"}))
	assert.Contains(t, out.String(), "cannot find it")
}

func TestFavAndLaunch(t *testing.T) {
	ctx := context.Background()
	a, root := testApp(t)
	var out bytes.Buffer
	require.NoError(t, a.cmdSetRoot(ctx, &out, []string{root}))

	out.Reset()
	require.NoError(t, a.cmdFav(&out, []string{"build.jsx"}))
	assert.Equal(t, "Added build.jsx to favourites\n", out.String())
	raw, err := a.kv.Get(ctx, settings.KeyFavourites)
	require.NoError(t, err)
	assert.Equal(t, "build.jsx", raw)

	out.Reset()
	require.NoError(t, a.cmdFavourites(ctx, &out))
	assert.Contains(t, out.String(), "Build Everything")
	assert.Contains(t, out.String(), root+"/Export/build.jsx")

	out.Reset()
	require.NoError(t, a.cmdLaunch(ctx, &out, []string{"build.jsx"}))
	assert.Contains(t, out.String(), "built "+root+"/Export/build.jsx")

	out.Reset()
	require.NoError(t, a.cmdFav(&out, []string{"BUILD.jsx"}))
	assert.Equal(t, "Removed BUILD.jsx from favourites\n", out.String())

	out.Reset()
	require.NoError(t, a.cmdFavourites(ctx, &out))
	assert.Equal(t, "No favourites.\n", out.String())
}
