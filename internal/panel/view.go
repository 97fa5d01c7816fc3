package panel

import (
	"sort"

	"github.com/fruitsalade/studiokit/pkg/models"
)

// FavouriteItem is one row of the favourites view.
type FavouriteItem struct {
	Filename string
	Label    string
	Path     string // path Launch would use
	Live     bool   // an entry for Filename is in the current tree
}

// Favourites derives the favourites view: every favourite, sorted by byte
// order of the stored spelling.
func (e *Engine) Favourites() []FavouriteItem {
	names := e.session.Favourites.All()
	sort.Strings(names)

	items := make([]FavouriteItem, 0, len(names))
	for _, name := range names {
		item := FavouriteItem{
			Filename: name,
			Label:    e.session.label(name),
			Path:     models.JoinPath(e.session.Root, name),
		}
		if entry, ok := e.tree.Find(name); ok {
			item.Label = entry.Label
			item.Path = entry.Path
			item.Live = true
		}
		items = append(items, item)
	}
	return items
}
