package panel

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/studiokit/internal/bridge"
	"github.com/fruitsalade/studiokit/internal/favourites"
	"github.com/fruitsalade/studiokit/internal/settings"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

// fakeHost answers expressions from a fixed table. Unknown expressions get
// the error sentinel, like a host missing the function.
type fakeHost struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	calls   []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{replies: map[string]string{}, fail: map[string]error{}}
}

func (h *fakeHost) Evaluate(_ context.Context, expr string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, expr)
	if err := h.fail[expr]; err != nil {
		return "", err
	}
	if r, ok := h.replies[expr]; ok {
		return r, nil
	}
	return "EvalScript error.", nil
}

func (h *fakeHost) set(fn, arg, reply string) {
	h.replies[bridge.Expression(fn, arg)] = reply
}

func (h *fakeHost) dirs(root string, names ...string) {
	h.set(bridge.FnListSubdirectories, root, protocol.ListReply(names).Encode())
}

func (h *fakeHost) files(dir string, names ...string) {
	h.set(bridge.FnListScriptFiles, dir, protocol.ListReply(names).Encode())
}

func (h *fakeHost) registry(root string, entries map[string]string) {
	h.set(bridge.FnReadNameRegistry, root+"/descriptions.json", protocol.MapReply(entries).Encode())
}

func (h *fakeHost) called(fn, arg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	want := bridge.Expression(fn, arg)
	for _, c := range h.calls {
		if c == want {
			return true
		}
	}
	return false
}

func (h *fakeHost) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func newTestEngine(t *testing.T, host bridge.Evaluator, favs ...string) *Engine {
	t.Helper()
	kv := settings.NewMemory()
	require.NoError(t, kv.Set(context.Background(), settings.KeyFavourites, favourites.Format(favs)))
	store, err := favourites.Load(context.Background(), kv)
	require.NoError(t, err)

	e := NewEngine(context.Background(), bridge.NewClient(host, time.Second), &Session{Favourites: store})
	t.Cleanup(e.Close)
	return e
}

func rebuild(t *testing.T, e *Engine, root string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Drain(ctx, e, e.Rebuild(root)))
	require.True(t, e.Settled())
}

func tabNames(tree *Tree) []string {
	var names []string
	for _, tab := range tree.Tabs {
		names = append(names, tab.Dir.Name)
	}
	return names
}

func filenames(tab *Tab) []string {
	var names []string
	for _, e := range tab.Entries {
		names = append(names, e.Filename)
	}
	return names
}

func TestEmptyRootMakesNoBridgeCalls(t *testing.T) {
	host := newFakeHost()
	e := newTestEngine(t, host)

	assert.Nil(t, e.Rebuild(""))
	assert.Equal(t, Rendered, e.Tree().State)
	assert.Equal(t, MsgNoRoot, e.Tree().Message)
	assert.Empty(t, e.Tree().Tabs)
	assert.Zero(t, host.callCount())
}

func TestRebuildFiltersHiddenFolders(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib", "A", ".hidden", "[custom]", "B")
	host.files("/lib/A", "one.jsx")
	host.files("/lib/B", "two.jsx")
	e := newTestEngine(t, host)

	rebuild(t, e, "/lib")

	tree := e.Tree()
	assert.Equal(t, Rendered, tree.State)
	assert.Equal(t, []string{"A", "B"}, tabNames(tree))
	assert.Equal(t, "tab1", tree.Tabs[0].ID)
	assert.Equal(t, "tab2", tree.Tabs[1].ID)
	assert.Equal(t, "/lib/B/two.jsx", tree.Tabs[1].Entries[0].Path)
	assert.False(t, host.called(bridge.FnListScriptFiles, "/lib/.hidden"))
	assert.False(t, host.called(bridge.FnListScriptFiles, "/lib/[custom]"))
}

func TestRegistryLabels(t *testing.T) {
	host := newFakeHost()
	host.registry("/lib", map[string]string{"one.jsx": "The First"})
	host.dirs("/lib", "A")
	host.files("/lib/A", "one.jsx", "my-script_v2.jsx")
	e := newTestEngine(t, host)

	rebuild(t, e, "/lib")

	entries := e.Tree().Tabs[0].Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "The First", entries[0].Label)
	assert.Equal(t, "My Script V2", entries[1].Label)
}

func TestMalformedRegistryFallsBackToPrettify(t *testing.T) {
	for _, raw := range []string{`{"my-script_v2.jsx":"Fan`, "EvalScript error.", `{"$v":1,"kind":"list"}`} {
		host := newFakeHost()
		host.set(bridge.FnReadNameRegistry, "/lib/descriptions.json", raw)
		host.dirs("/lib", "A")
		host.files("/lib/A", "my-script_v2.jsx")
		e := newTestEngine(t, host)

		rebuild(t, e, "/lib")

		require.Len(t, e.Tree().Tabs[0].Entries, 1, raw)
		assert.Equal(t, "My Script V2", e.Tree().Tabs[0].Entries[0].Label, raw)
	}
}

func TestEmptyListingChecksRoot(t *testing.T) {
	tests := []struct {
		name   string
		exists string
		want   string
	}{
		{"missing", "false", "Scripts folder not found: /lib"},
		{"present", "true", "No script folders found in /lib."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost()
			host.dirs("/lib", ".git")
			host.set(bridge.FnPathExists, "/lib", tt.exists)
			e := newTestEngine(t, host)

			rebuild(t, e, "/lib")

			assert.Equal(t, Rendered, e.Tree().State)
			assert.Equal(t, tt.want, e.Tree().Message)
			assert.Empty(t, e.Tree().Tabs)
		})
	}
}

func TestTabWithNoFiles(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib", "Empty")
	host.files("/lib/Empty")
	e := newTestEngine(t, host)

	rebuild(t, e, "/lib")

	tab := e.Tree().Tabs[0]
	assert.Equal(t, TabEmpty, tab.State)
	assert.Equal(t, MsgNoFiles, tab.Message)
	assert.Empty(t, tab.Entries)
}

func TestBridgeUnavailableSkipsUpdate(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib", "A", "B")
	host.files("/lib/A", "one.jsx")
	host.fail[bridge.Expression(bridge.FnListScriptFiles, "/lib/B")] = bridge.ErrOffline
	e := newTestEngine(t, host)

	rebuild(t, e, "/lib")

	tree := e.Tree()
	assert.Equal(t, TabReady, tree.Tabs[0].State)
	assert.Equal(t, TabLoading, tree.Tabs[1].State)
	assert.Empty(t, tree.Tabs[1].Entries)
	assert.ErrorIs(t, e.Err(), bridge.ErrOffline)
}

func TestDirectoryListingUnavailable(t *testing.T) {
	host := newFakeHost()
	host.fail[bridge.Expression(bridge.FnListSubdirectories, "/lib")] = errors.New("connection refused")
	e := newTestEngine(t, host)

	rebuild(t, e, "/lib")

	assert.Equal(t, Rendered, e.Tree().State)
	assert.Equal(t, "Could not reach the script host to list /lib.", e.Tree().Message)
	assert.Empty(t, e.Tree().Tabs)
	assert.Error(t, e.Err())
	assert.True(t, e.Settled())
}

func TestRootCheckUnavailable(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib")
	host.fail[bridge.Expression(bridge.FnPathExists, "/lib")] = errors.New("connection refused")
	e := newTestEngine(t, host)

	rebuild(t, e, "/lib")

	assert.Equal(t, Rendered, e.Tree().State)
	assert.Equal(t, "Could not reach the script host to list /lib.", e.Tree().Message)
}

func TestReplyForMissingTabIsDropped(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib", "A")
	host.files("/lib/A", "one.jsx")
	e := newTestEngine(t, host)
	rebuild(t, e, "/lib")

	cmd := e.Update(filesMsg{gen: e.gen, tabID: "tab9", files: []string{"ghost.jsx"}})
	assert.Nil(t, cmd)
	assert.Len(t, e.Tree().Tabs, 1)
	assert.Equal(t, []string{"one.jsx"}, filenames(e.Tree().Tabs[0]))
}

// scheduler runs tasks in a seeded random order, so replies arrive in
// any interleaving.
type scheduler struct {
	rng  *rand.Rand
	cmds []tea.Cmd
}

func (s *scheduler) add(c tea.Cmd) {
	if c != nil {
		s.cmds = append(s.cmds, c)
	}
}

func (s *scheduler) step(e *Engine) {
	i := s.rng.Intn(len(s.cmds))
	c := s.cmds[i]
	s.cmds = append(s.cmds[:i], s.cmds[i+1:]...)

	switch msg := c().(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			s.add(c)
		}
	default:
		s.add(e.Update(msg))
	}
}

func TestShuffledRepliesAcrossRebuilds(t *testing.T) {
	host := newFakeHost()
	host.dirs("/old", "X", "Y", "Z")
	host.files("/old/X", "x.jsx")
	host.files("/old/Y", "y.jsx")
	host.files("/old/Z", "z.jsx")
	host.dirs("/new", "A", "B", "C")
	host.files("/new/A", "a1.jsx", "a2.jsx")
	host.files("/new/B", "b.jsx")
	host.files("/new/C")

	for seed := int64(0); seed < 50; seed++ {
		e := newTestEngine(t, host, "b.jsx")
		s := &scheduler{rng: rand.New(rand.NewSource(seed))}

		s.add(e.Rebuild("/old"))
		for n := s.rng.Intn(5); n > 0 && len(s.cmds) > 0; n-- {
			s.step(e)
		}
		s.add(e.Rebuild("/new"))
		for len(s.cmds) > 0 {
			s.step(e)
		}

		tree := e.Tree()
		require.Equal(t, Rendered, tree.State, "seed %d", seed)
		require.True(t, e.Settled(), "seed %d", seed)
		require.Equal(t, []string{"A", "B", "C"}, tabNames(tree), "seed %d", seed)
		assert.Equal(t, []string{"a1.jsx", "a2.jsx"}, filenames(tree.Tabs[0]), "seed %d", seed)
		assert.Equal(t, []string{"b.jsx"}, filenames(tree.Tabs[1]), "seed %d", seed)
		assert.True(t, tree.Tabs[1].Entries[0].Favourite, "seed %d", seed)
		assert.Equal(t, TabEmpty, tree.Tabs[2].State, "seed %d", seed)
		for _, tab := range tree.Tabs {
			for _, entry := range tab.Entries {
				assert.Contains(t, entry.Path, "/new/", "seed %d", seed)
			}
		}
	}
}

func TestToggleFavouriteMarksMatchingEntries(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib", "A", "B")
	host.files("/lib/A", "Tool.jsx", "other.jsx")
	host.files("/lib/B", "tool.jsx")
	e := newTestEngine(t, host)
	rebuild(t, e, "/lib")

	on, err := e.ToggleFavourite("Tool.jsx")
	require.NoError(t, err)
	assert.True(t, on)
	tree := e.Tree()
	assert.True(t, tree.Tabs[0].Entries[0].Favourite)
	assert.False(t, tree.Tabs[0].Entries[1].Favourite)
	assert.True(t, tree.Tabs[1].Entries[0].Favourite)
	assert.Len(t, e.Favourites(), 1)

	on, err = e.ToggleFavourite("Tool.jsx")
	require.NoError(t, err)
	assert.False(t, on)
	assert.False(t, tree.Tabs[0].Entries[0].Favourite)
	assert.False(t, tree.Tabs[1].Entries[0].Favourite)
	assert.Empty(t, e.Favourites())
}

func TestFavouritesSurviveRebuild(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib", "A")
	host.files("/lib/A", "keep.jsx")
	e := newTestEngine(t, host, "KEEP.jsx")

	rebuild(t, e, "/lib")
	assert.True(t, e.Tree().Tabs[0].Entries[0].Favourite)

	rebuild(t, e, "/lib")
	assert.True(t, e.Tree().Tabs[0].Entries[0].Favourite)
}

func TestFavouritesView(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib", "Tools")
	host.files("/lib/Tools", "a.jsx")
	host.set(bridge.FnLaunchScript, "/lib/Tools/a.jsx", protocol.TextReply("ok").Encode())
	host.set(bridge.FnLaunchScript, "/lib/gone.jsx", protocol.TextReply("fallback").Encode())
	e := newTestEngine(t, host, "gone.jsx", "b.jsx", "A.jsx")
	rebuild(t, e, "/lib")

	items := e.Favourites()
	require.Len(t, items, 3)
	assert.Equal(t, "A.jsx", items[0].Filename)
	assert.Equal(t, "b.jsx", items[1].Filename)
	assert.Equal(t, "gone.jsx", items[2].Filename)

	assert.True(t, items[0].Live)
	assert.Equal(t, "/lib/Tools/a.jsx", items[0].Path)
	assert.False(t, items[2].Live)
	assert.Equal(t, "/lib/gone.jsx", items[2].Path)
	assert.Equal(t, "Gone", items[2].Label)

	msg := e.LaunchFavourite("A.jsx")().(LaunchedMsg)
	assert.NoError(t, msg.Err)
	assert.Equal(t, "/lib/Tools/a.jsx", msg.Path)
	assert.Equal(t, "ok", msg.Result)

	msg = e.LaunchFavourite("gone.jsx")().(LaunchedMsg)
	assert.Equal(t, "/lib/gone.jsx", msg.Path)
	assert.Equal(t, "fallback", msg.Result)

	assert.Nil(t, e.Update(msg))
	assert.Equal(t, "fallback", e.LastLaunch().Result)
}

func TestUnfavouriteReconcilesTree(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib", "A")
	host.files("/lib/A", "a.jsx")
	e := newTestEngine(t, host, "a.jsx")
	rebuild(t, e, "/lib")
	require.True(t, e.Tree().Tabs[0].Entries[0].Favourite)
	calls := host.callCount()

	require.NoError(t, e.Unfavourite("A.JSX"))
	assert.False(t, e.Tree().Tabs[0].Entries[0].Favourite)
	assert.Empty(t, e.Favourites())
	assert.Equal(t, calls, host.callCount())

	require.NoError(t, e.Unfavourite("a.jsx"))
}

func TestLaunchEntry(t *testing.T) {
	host := newFakeHost()
	host.dirs("/lib", "A")
	host.files("/lib/A", "a.jsx")
	host.fail[bridge.Expression(bridge.FnLaunchScript, "/lib/A/a.jsx")] = bridge.ErrOffline
	e := newTestEngine(t, host)
	rebuild(t, e, "/lib")

	msg := e.Launch(e.Tree().Tabs[0].Entries[0])().(LaunchedMsg)
	assert.ErrorIs(t, msg.Err, bridge.ErrOffline)
	assert.Equal(t, "a.jsx", msg.Filename)
}
