// Studio Toolkit shelf
//
// A tabbed launcher for a folder of scripts. Each subfolder of the scripts
// folder becomes a tab; each script in it becomes an entry that can be
// launched or marked as a favourite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/fruitsalade/studiokit/internal/config"
	"github.com/fruitsalade/studiokit/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("STUDIOKIT_CONFIG"), "Path to YAML config file")
	flag.Usage = printUsage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	cmd := ""
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if cmd == "" {
		cmd = "list"
		if term.IsTerminal(int(os.Stdout.Fd())) {
			cmd = "tui"
		}
	}
	if cmd == "help" {
		printUsage()
		return
	}

	logCfg := logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, OutputPath: cfg.Log.Output}
	if cmd == "tui" && (logCfg.OutputPath == "stdout" || logCfg.OutputPath == "stderr" || logCfg.OutputPath == "") {
		logCfg.OutputPath = filepath.Join(cfg.DataDir, "logs", "shelf.log")
	}
	if err := logging.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Logging init error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	switch cmd {
	case "tui":
		err = a.cmdTUI(ctx)
	case "list", "ls":
		err = a.cmdList(ctx, os.Stdout)
	case "favourites", "favs":
		err = a.cmdFavourites(ctx, os.Stdout)
	case "fav":
		err = a.cmdFav(os.Stdout, args)
	case "launch":
		err = a.cmdLaunch(ctx, os.Stdout, args)
	case "set-root":
		err = a.cmdSetRoot(ctx, os.Stdout, args)
	case "get-root":
		err = a.cmdGetRoot(ctx, os.Stdout)
	case "events":
		err = a.cmdEvents(ctx, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		a.close()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.close()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Studio Toolkit shelf

Usage: shelf [flags] [command] [args]

Flags:
  -config <file>     YAML config file (default: $STUDIOKIT_CONFIG)

Commands:
  tui                Interactive panel (default on a terminal)
  list, ls           Print every tab and script once all replies are in
  favourites, favs   Print the favourites view
  fav <file>         Toggle a script as favourite
  launch <file>      Launch a script by filename
  set-root <path>    Save the scripts folder
  get-root           Print the scripts folder and its status
  events             Follow library changes until interrupted
  help               Show this help

Environment variables use the STUDIOKIT_ prefix, e.g. STUDIOKIT_BRIDGE_MODE=http.`)
}
