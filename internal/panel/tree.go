package panel

import (
	"strings"

	"github.com/fruitsalade/studiokit/pkg/models"
)

// State is the stage a rebuild has reached.
type State int

const (
	Idle State = iota
	ListingDirectories
	ListingFiles
	Rendered
)

func (s State) String() string {
	switch s {
	case ListingDirectories:
		return "listing directories"
	case ListingFiles:
		return "listing files"
	case Rendered:
		return "rendered"
	default:
		return "idle"
	}
}

// TabState is the state of one tab's content.
type TabState int

const (
	TabLoading TabState = iota
	TabReady
	TabEmpty
)

// Messages shown in place of content.
const (
	MsgNoRoot      = "Set your scripts folder in the settings to display tabs."
	MsgNoFiles     = "No files found in this folder."
	msgRootMissing = "Scripts folder not found: "
	msgNoFolders   = "No script folders found in "
	msgUnreachable = "Could not reach the script host to list "
)

// Tab is one subdirectory of the library root.
type Tab struct {
	ID      string
	Dir     models.DirectoryEntry
	State   TabState
	Entries []models.ScriptEntry
	Message string
}

// Tree is the rendered library. A rebuild replaces it wholesale.
type Tree struct {
	Generation uint64
	Root       string
	State      State
	Message    string
	Tabs       []*Tab
}

// Tab returns the tab with id, or nil.
func (t *Tree) Tab(id string) *Tab {
	for _, tab := range t.Tabs {
		if tab.ID == id {
			return tab
		}
	}
	return nil
}

// Find returns the first entry whose filename matches name,
// case-insensitively.
func (t *Tree) Find(name string) (models.ScriptEntry, bool) {
	for _, tab := range t.Tabs {
		for _, e := range tab.Entries {
			if strings.EqualFold(e.Filename, name) {
				return e, true
			}
		}
	}
	return models.ScriptEntry{}, false
}

// mark sets the favourite marker of every entry for which fav reports a
// value.
func (t *Tree) mark(fav func(filename string) bool) {
	for _, tab := range t.Tabs {
		for i := range tab.Entries {
			tab.Entries[i].Favourite = fav(tab.Entries[i].Filename)
		}
	}
}
