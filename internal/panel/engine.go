package panel

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fruitsalade/studiokit/internal/bridge"
	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/internal/present"
	"github.com/fruitsalade/studiokit/pkg/models"
)

const defaultRegistryFile = "descriptions.json"

// Reasons a reply is dropped without touching the tree.
const (
	staleGeneration = "generation"
	staleMissingTab = "missing_tab"
)

type registryMsg struct {
	gen     uint64
	entries map[string]string
	err     error
}

type dirsMsg struct {
	gen   uint64
	names []string
	err   error
}

type rootMsg struct {
	gen    uint64
	exists bool
	err    error
}

type filesMsg struct {
	gen   uint64
	tabID string
	files []string
	err   error
}

// LaunchedMsg reports the advisory result of a script launch.
type LaunchedMsg struct {
	Filename string
	Path     string
	Result   string
	Err      error
}

// Engine owns the tree and turns bridge replies into tree updates. It is
// not safe for concurrent use; drive it from a single loop.
type Engine struct {
	ctx     context.Context
	client  *bridge.Client
	session *Session

	tree    *Tree
	gen     uint64
	pending int
	started time.Time
	lastErr error
	launch  *LaunchedMsg

	unsubscribe func()
}

// NewEngine creates an Engine with an empty tree. Bridge calls issued by
// the engine's tasks use ctx.
func NewEngine(ctx context.Context, client *bridge.Client, session *Session) *Engine {
	if session.RegistryFile == "" {
		session.RegistryFile = defaultRegistryFile
	}
	if session.Presenter.Extension == "" {
		session.Presenter = present.New("")
	}
	e := &Engine{
		ctx:     ctx,
		client:  client,
		session: session,
		tree:    &Tree{Root: session.Root},
	}
	e.unsubscribe = session.Favourites.Subscribe(func(names []string) {
		e.tree.mark(func(filename string) bool { return containsFold(names, filename) })
	})
	return e
}

// Close detaches the engine from the favourites store.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// Tree returns the current tree. It is replaced by every Rebuild.
func (e *Engine) Tree() *Tree { return e.tree }

func (e *Engine) Session() *Session { return e.session }

// Settled reports whether every task of the current rebuild has answered.
func (e *Engine) Settled() bool { return e.pending == 0 }

// Err returns the last transport error seen by the current rebuild.
func (e *Engine) Err() error { return e.lastErr }

// LastLaunch returns the most recent launch result, or nil.
func (e *Engine) LastLaunch() *LaunchedMsg { return e.launch }

// Rebuild discards the tree and starts listing root. Replies to earlier
// rebuilds still in flight are dropped when they arrive. An empty root
// renders the empty-state message without calling the bridge.
func (e *Engine) Rebuild(root string) tea.Cmd {
	e.gen++
	gen := e.gen
	e.pending = 0
	e.lastErr = nil
	e.started = time.Now()
	e.session.Root = root
	e.tree = &Tree{Generation: gen, Root: root, State: ListingDirectories}

	metrics.RecordRebuildStart()
	metrics.SetTabsRendered(0)
	logging.Debug("rebuild started", logging.Generation(gen), logging.Root(root))

	if root == "" {
		e.tree.State = Rendered
		e.tree.Message = MsgNoRoot
		return nil
	}

	// Labels come from the registry, so it is read before any tab exists.
	path := models.JoinPath(root, e.session.RegistryFile)
	return e.task(func(ctx context.Context) tea.Msg {
		entries, err := e.client.ReadNameRegistry(ctx, path)
		return registryMsg{gen: gen, entries: entries, err: err}
	})
}

// Update applies a task result to the tree and returns follow-up tasks.
func (e *Engine) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case registryMsg:
		if !e.accept(msg.gen) {
			return nil
		}
		if msg.err != nil {
			e.unavailable(bridge.FnReadNameRegistry, msg.err)
		}
		e.session.Registry = present.Registry(msg.entries)
		return e.listDirectories(msg.gen)

	case dirsMsg:
		if !e.accept(msg.gen) {
			return nil
		}
		if msg.err != nil {
			e.unavailable(bridge.FnListSubdirectories, msg.err)
			e.unreachable()
			return nil
		}
		return e.openTabs(msg.gen, msg.names)

	case rootMsg:
		if !e.accept(msg.gen) {
			return nil
		}
		if msg.err != nil {
			e.unavailable(bridge.FnPathExists, msg.err)
			e.unreachable()
			return nil
		}
		if msg.exists {
			e.tree.Message = msgNoFolders + e.tree.Root + "."
		} else {
			e.tree.Message = msgRootMissing + e.tree.Root
		}
		e.tree.State = Rendered
		e.settled()
		return nil

	case filesMsg:
		if msg.gen != e.gen {
			e.drop(staleGeneration, msg.gen)
			return nil
		}
		tab := e.tree.Tab(msg.tabID)
		if tab == nil {
			e.drop(staleMissingTab, msg.gen)
			return nil
		}
		e.pending--
		if msg.err != nil {
			e.unavailable(bridge.FnListScriptFiles, msg.err)
		} else {
			e.fillTab(tab, msg.files)
		}
		if e.pending == 0 {
			e.tree.State = Rendered
			e.settled()
		}
		return nil

	case LaunchedMsg:
		e.launch = &msg
		return nil
	}
	return nil
}

func (e *Engine) listDirectories(gen uint64) tea.Cmd {
	root := e.tree.Root
	return e.task(func(ctx context.Context) tea.Msg {
		names, err := e.client.ListSubdirectories(ctx, root)
		return dirsMsg{gen: gen, names: names, err: err}
	})
}

func (e *Engine) openTabs(gen uint64, names []string) tea.Cmd {
	var dirs []models.DirectoryEntry
	for _, name := range names {
		name = models.BaseName(name)
		if models.IsHidden(name) {
			continue
		}
		dirs = append(dirs, models.DirectoryEntry{Name: name, Path: models.JoinPath(e.tree.Root, name)})
	}

	if len(dirs) == 0 {
		root := e.tree.Root
		return e.task(func(ctx context.Context) tea.Msg {
			exists, err := e.client.PathExists(ctx, root)
			return rootMsg{gen: gen, exists: exists, err: err}
		})
	}

	e.tree.State = ListingFiles
	cmds := make([]tea.Cmd, 0, len(dirs))
	for i, dir := range dirs {
		tab := &Tab{ID: fmt.Sprintf("tab%d", i+1), Dir: dir, State: TabLoading}
		e.tree.Tabs = append(e.tree.Tabs, tab)

		id, path := tab.ID, dir.Path
		cmds = append(cmds, e.task(func(ctx context.Context) tea.Msg {
			files, err := e.client.ListScriptFiles(ctx, path)
			return filesMsg{gen: gen, tabID: id, files: files, err: err}
		}))
	}
	metrics.SetTabsRendered(len(e.tree.Tabs))
	return tea.Batch(cmds...)
}

func (e *Engine) fillTab(tab *Tab, files []string) {
	favs := e.session.Favourites
	entries := make([]models.ScriptEntry, 0, len(files))
	for _, f := range files {
		name := models.BaseName(f)
		if name == "" {
			continue
		}
		entries = append(entries, models.ScriptEntry{
			Filename:  name,
			Label:     e.session.label(name),
			Path:      models.JoinPath(tab.Dir.Path, name),
			Favourite: favs.Contains(name),
		})
	}
	tab.Entries = entries
	if len(entries) == 0 {
		tab.State = TabEmpty
		tab.Message = MsgNoFiles
		return
	}
	tab.State = TabReady
}

// task counts a bridge call against the current rebuild.
func (e *Engine) task(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	e.pending++
	ctx := e.ctx
	return func() tea.Msg { return fn(ctx) }
}

// accept reports whether a reply belongs to the current rebuild and, if
// so, marks its task done.
func (e *Engine) accept(gen uint64) bool {
	if gen != e.gen {
		e.drop(staleGeneration, gen)
		return false
	}
	e.pending--
	return true
}

func (e *Engine) drop(reason string, gen uint64) {
	metrics.RecordStaleReply(reason)
	logging.Debug("reply dropped",
		logging.String("reason", reason),
		logging.Generation(gen),
		logging.Uint64("current", e.gen),
	)
}

func (e *Engine) unavailable(fn string, err error) {
	e.lastErr = err
	logging.Warn("bridge unavailable, update skipped",
		logging.Function(fn),
		logging.Generation(e.gen),
		logging.Err(err),
	)
}

// unreachable renders the tree with no tabs when the host could not list
// the root at all.
func (e *Engine) unreachable() {
	e.tree.Message = msgUnreachable + e.tree.Root + "."
	e.tree.State = Rendered
	e.settled()
}

func (e *Engine) settled() {
	metrics.RecordRebuildSettled(time.Since(e.started))
	logging.Debug("rebuild settled",
		logging.Generation(e.gen),
		logging.Int("tabs", len(e.tree.Tabs)),
	)
}

// ToggleFavourite flips name in the favourites and reports whether it is
// now a favourite. Markers in the tree follow through the store's change
// notification.
func (e *Engine) ToggleFavourite(name string) (bool, error) {
	return e.session.Favourites.Toggle(e.ctx, name)
}

// Unfavourite removes name from the favourites.
func (e *Engine) Unfavourite(name string) error {
	return e.session.Favourites.Remove(e.ctx, name)
}

// Launch runs a tree entry.
func (e *Engine) Launch(entry models.ScriptEntry) tea.Cmd {
	return e.launchPath(entry.Filename, entry.Path)
}

// LaunchFavourite runs the favourite name, preferring the path of a live
// entry in the tree and falling back to root/name.
func (e *Engine) LaunchFavourite(name string) tea.Cmd {
	if entry, ok := e.tree.Find(name); ok {
		return e.launchPath(entry.Filename, entry.Path)
	}
	return e.launchPath(name, models.JoinPath(e.session.Root, name))
}

func (e *Engine) launchPath(filename, path string) tea.Cmd {
	ctx := e.ctx
	return func() tea.Msg {
		result, err := e.client.LaunchScript(ctx, path)
		if err == nil {
			logging.Info("script launched",
				logging.String("path", path),
				logging.String("result", result),
			)
		}
		return LaunchedMsg{Filename: filename, Path: path, Result: result, Err: err}
	}
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
