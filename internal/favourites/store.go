// Package favourites keeps the persisted, ordered set of favourite script
// filenames.
//
// Membership is case-insensitive: "Crop.jsx" and "crop.jsx" are the same
// favourite, and the set keeps whichever spelling was added first.
package favourites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/internal/settings"
)

// Separator joins names in the persisted value.
const Separator = ","

// ErrInvalidName is returned for names the persisted form cannot hold.
var ErrInvalidName = errors.New("favourites: name is empty or contains the separator")

// Listener receives a snapshot of the set after every change.
type Listener func(names []string)

// Store is the favourites set, written through to a settings.Store under
// settings.KeyFavourites on every mutation. It is safe for concurrent use:
// mutations are serialised through persistence and notification, so the
// last value written is always the current set. Listeners must not mutate
// the store.
type Store struct {
	kv settings.Store

	writeMu sync.Mutex // held from mutation until listeners return

	mu        sync.Mutex
	names     []string
	listeners map[int]Listener
	nextID    int
}

// Load reads the persisted set. A missing key is an empty set. On any
// other read error the returned Store is empty but usable.
func Load(ctx context.Context, kv settings.Store) (*Store, error) {
	s := &Store{kv: kv, listeners: make(map[int]Listener)}
	raw, err := settings.GetOr(ctx, kv, settings.KeyFavourites, "")
	s.names = Parse(raw)
	metrics.SetFavourites(len(s.names))
	if err != nil {
		return s, fmt.Errorf("load favourites: %w", err)
	}
	return s, nil
}

// Parse splits a persisted value, dropping empty tokens and
// case-insensitive duplicates.
func Parse(raw string) []string {
	var out []string
	for _, tok := range strings.Split(raw, Separator) {
		if tok == "" || indexFold(out, tok) >= 0 {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Format joins names for persistence.
func Format(names []string) string {
	return strings.Join(names, Separator)
}

func indexFold(names []string, name string) int {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}

// Contains reports whether name is a favourite.
func (s *Store) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexFold(s.names, name) >= 0
}

// All returns the favourites in insertion order.
func (s *Store) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

// Len returns the number of favourites.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

// Add inserts name. Adding a member is a no-op.
func (s *Store) Add(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.add(ctx, name)
}

func (s *Store) add(ctx context.Context, name string) error {
	if name == "" || strings.Contains(name, Separator) {
		return ErrInvalidName
	}
	s.mu.Lock()
	if indexFold(s.names, name) >= 0 {
		s.mu.Unlock()
		return nil
	}
	s.names = append(s.names, name)
	return s.commit(ctx)
}

// Remove deletes name. Removing a non-member is a no-op.
func (s *Store) Remove(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.remove(ctx, name)
}

func (s *Store) remove(ctx context.Context, name string) error {
	s.mu.Lock()
	i := indexFold(s.names, name)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.names = append(s.names[:i:i], s.names[i+1:]...)
	return s.commit(ctx)
}

// Toggle flips membership of name and reports whether it is now a member.
func (s *Store) Toggle(ctx context.Context, name string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.Contains(name) {
		return false, s.remove(ctx, name)
	}
	if err := s.add(ctx, name); err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe registers fn for change notifications and returns a func
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// commit persists and notifies. It is called with s.writeMu and s.mu held
// and releases s.mu. The in-memory set keeps the mutation even if persisting fails.
func (s *Store) commit(ctx context.Context) error {
	snapshot := make([]string, len(s.names))
	copy(snapshot, s.names)
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	metrics.SetFavourites(len(snapshot))
	err := s.kv.Set(ctx, settings.KeyFavourites, Format(snapshot))

	for _, fn := range listeners {
		fn(snapshot)
	}
	if err != nil {
		return fmt.Errorf("persist favourites: %w", err)
	}
	return nil
}
