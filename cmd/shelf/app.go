package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/studiokit/internal/bridge"
	"github.com/fruitsalade/studiokit/internal/config"
	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/panel"
	"github.com/fruitsalade/studiokit/internal/retry"
	"github.com/fruitsalade/studiokit/internal/scripthost"
	"github.com/fruitsalade/studiokit/internal/settings"
	"github.com/fruitsalade/studiokit/internal/tui"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

const pingInterval = 15 * time.Second

type app struct {
	cfg    *config.Config
	kv     settings.Store
	client *bridge.Client
	remote *bridge.HTTPEvaluator // nil in local mode
	engine *panel.Engine
	closed bool
}

func open(ctx context.Context, cfg *config.Config) (*app, error) {
	kv, err := settings.NewFromConfig(ctx, cfg.Settings)
	if err != nil {
		return nil, err
	}
	session, err := panel.LoadSession(ctx, kv, cfg.Library)
	if err != nil {
		kv.Close()
		return nil, err
	}

	a := &app{cfg: cfg, kv: kv}

	var eval bridge.Evaluator
	switch cfg.Bridge.Mode {
	case "http":
		rc := retry.DefaultConfig()
		rc.MaxAttempts = cfg.Bridge.RetryAttempts
		a.remote = bridge.NewHTTP(bridge.HTTPConfig{
			BaseURL:     cfg.Bridge.BaseURL,
			Timeout:     max(cfg.Bridge.Timeout, cfg.Bridge.LaunchTimeout),
			RetryConfig: rc,
			AuthToken:   cfg.Bridge.Token,
		})
		eval = a.remote
	default:
		eval = scripthost.NewEngine(scripthost.Config{
			ScriptExtension: cfg.Library.ScriptExtension,
			ScriptTimeout:   cfg.Host.ScriptTimeout,
		})
	}
	logging.Debug("bridge selected", logging.String("mode", cfg.Bridge.Mode))

	a.client = bridge.NewClient(eval, cfg.Bridge.Timeout)
	a.client.SetLaunchTimeout(cfg.Bridge.LaunchTimeout)
	a.engine = panel.NewEngine(ctx, a.client, session)
	return a, nil
}

func (a *app) close() {
	if a.closed {
		return
	}
	a.closed = true
	a.engine.Close()
	if err := a.kv.Close(); err != nil {
		logging.Warn("closing settings store", logging.Err(err))
	}
}

func (a *app) root() string { return a.engine.Session().Root }

// rebuild lists the library and waits for every reply.
func (a *app) rebuild(ctx context.Context) error {
	if err := panel.Drain(ctx, a.engine, a.engine.Rebuild(a.root())); err != nil {
		return err
	}
	if err := a.engine.Err(); err != nil {
		logging.Warn("library listing incomplete", logging.Err(err))
	}
	return nil
}

func (a *app) cmdTUI(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []tui.Option{}
	if events := a.events(ctx); events != nil {
		opts = append(opts, tui.WithEvents(events))
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.remote != nil {
		opts = append(opts, tui.WithOnline(a.remote.IsOnline))
		g.Go(func() error {
			a.pingLoop(gctx)
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, tui.New(a.engine, opts...))
	})
	return g.Wait()
}

// events returns library change notifications: the host's SSE stream in
// http mode, a local watcher otherwise.
func (a *app) events(ctx context.Context) <-chan protocol.Event {
	if !a.cfg.Bridge.Events {
		return nil
	}
	if a.remote != nil {
		return bridge.NewEventStream(a.remote).Subscribe(ctx)
	}
	if a.root() == "" {
		return nil
	}

	b := scripthost.NewBroadcaster()
	ch := b.Subscribe()
	w := scripthost.NewWatcher(a.root(), a.cfg.Library.ScriptExtension,
		a.cfg.Library.RegistryFilename, a.cfg.Host.WatchDebounce, b)
	go func() {
		defer b.Unsubscribe(ch)
		if err := w.Run(ctx); err != nil {
			logging.Warn("library watcher stopped", logging.Err(err))
		}
	}()
	return ch
}

// cmdEvents prints library change notifications until ctx is done.
func (a *app) cmdEvents(ctx context.Context, out io.Writer) error {
	if !a.cfg.Bridge.Events {
		return fmt.Errorf("events are disabled (bridge.events)")
	}
	events := a.events(ctx)
	if events == nil {
		return fmt.Errorf("no scripts folder to watch")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "%s %s %s %s\n", time.Unix(ev.Timestamp, 0).Format(time.RFC3339), ev.Type, ev.Op, ev.Path)
		}
	}
}

func (a *app) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		if err := a.remote.Ping(ctx); err != nil {
			logging.Debug("script host unreachable", logging.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) cmdList(ctx context.Context, out io.Writer) error {
	if err := a.rebuild(ctx); err != nil {
		return err
	}
	tree := a.engine.Tree()

	fmt.Fprintf(out, "Scripts folder: %s\n", orNone(tree.Root))
	if tree.Message != "" {
		fmt.Fprintln(out, tree.Message)
		return a.engine.Err()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, tab := range tree.Tabs {
		fmt.Fprintf(w, "\n[%s]\n", tab.Dir.Name)
		switch {
		case tab.State == panel.TabLoading:
			fmt.Fprintln(w, "  (no reply from script host)")
		case tab.Message != "":
			fmt.Fprintf(w, "  %s\n", tab.Message)
		}
		for _, e := range tab.Entries {
			fmt.Fprintf(w, "  %s %s\t%s\n", star(e.Favourite), e.Label, e.Filename)
		}
	}
	return w.Flush()
}

func (a *app) cmdFavourites(ctx context.Context, out io.Writer) error {
	if err := a.rebuild(ctx); err != nil {
		return err
	}
	items := a.engine.Favourites()
	if len(items) == 0 {
		fmt.Fprintln(out, "No favourites.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tFILE\tPATH")
	for _, item := range items {
		path := item.Path
		if !item.Live {
			path += " (not in current tabs)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", item.Label, item.Filename, path)
	}
	return w.Flush()
}

func (a *app) cmdFav(out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: shelf fav <file>")
	}
	on, err := a.engine.ToggleFavourite(args[0])
	if err != nil {
		return err
	}
	if on {
		fmt.Fprintf(out, "Added %s to favourites\n", args[0])
	} else {
		fmt.Fprintf(out, "Removed %s from favourites\n", args[0])
	}
	return nil
}

func (a *app) cmdLaunch(ctx context.Context, out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: shelf launch <file>")
	}
	if err := a.rebuild(ctx); err != nil {
		return err
	}
	msg, _ := a.engine.LaunchFavourite(args[0])().(panel.LaunchedMsg)
	if msg.Err != nil {
		return msg.Err
	}
	fmt.Fprintf(out, "Launched %s\n", msg.Path)
	if msg.Result != "" {
		fmt.Fprintln(out, msg.Result)
	}
	return nil
}

func (a *app) cmdSetRoot(ctx context.Context, out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: shelf set-root <path>")
	}
	path, status, err := panel.SetRoot(ctx, a.kv, a.client, args[0])
	if err != nil {
		return err
	}
	a.engine.Session().Root = path
	switch status {
	case panel.RootSaved:
		fmt.Fprintf(out, "Saved scripts folder %s\n", path)
	default:
		fmt.Fprintf(out, "Saved scripts folder %s, but the script host cannot find it\n", path)
	}
	return nil
}

func (a *app) cmdGetRoot(ctx context.Context, out io.Writer) error {
	root := a.root()
	if root == "" {
		fmt.Fprintln(out, panel.MsgNoRoot)
		return nil
	}
	status, err := panel.CheckRoot(ctx, a.client, root, root)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s)\n", root, status)
	return nil
}

func star(on bool) string {
	if on {
		return "★"
	}
	return " "
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
