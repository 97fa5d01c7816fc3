// Package panel rebuilds the tabbed script library from bridge replies and
// keeps favourite markers consistent across rebuilds.
//
// All state changes happen in Engine.Update, on whatever goroutine drives
// the loop (the bubbletea program or Drain). Bridge calls run as tea.Cmd
// tasks whose results come back as messages tagged with the rebuild
// generation they were issued under.
package panel

import (
	"context"
	"fmt"

	"github.com/fruitsalade/studiokit/internal/config"
	"github.com/fruitsalade/studiokit/internal/favourites"
	"github.com/fruitsalade/studiokit/internal/present"
	"github.com/fruitsalade/studiokit/internal/settings"
)

// Session is the process-wide state the tree is built from.
type Session struct {
	Root         string
	RegistryFile string
	Registry     present.Registry
	Presenter    present.Presenter
	Favourites   *favourites.Store
}

// LoadSession reads the saved root and the favourites from kv.
func LoadSession(ctx context.Context, kv settings.Store, lib config.LibraryConfig) (*Session, error) {
	root, err := settings.GetOr(ctx, kv, settings.KeyRootDirectory, "")
	if err != nil {
		return nil, fmt.Errorf("read root directory: %w", err)
	}
	favs, err := favourites.Load(ctx, kv)
	if err != nil {
		return nil, err
	}
	return &Session{
		Root:         root,
		RegistryFile: lib.RegistryFilename,
		Presenter:    present.New(lib.ScriptExtension),
		Favourites:   favs,
	}, nil
}

func (s *Session) label(filename string) string {
	return s.Presenter.Label(filename, s.Registry)
}
