package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fruitsalade/studiokit/internal/bridge"
	"github.com/fruitsalade/studiokit/internal/settings"
)

// ErrInvalidRoot is returned for an empty root or one containing a
// character no filesystem path may hold.
var ErrInvalidRoot = errors.New("panel: invalid scripts folder path")

const invalidRootChars = `*?"<>|`

// RootStatus is how a candidate root compares to the host filesystem and
// the saved setting.
type RootStatus int

const (
	RootInvalid RootStatus = iota // malformed, or the host cannot find it
	RootSaved                     // exists and is the saved root
	RootUnsaved                   // exists but differs from the saved root
)

func (s RootStatus) String() string {
	switch s {
	case RootSaved:
		return "saved"
	case RootUnsaved:
		return "valid, not saved"
	default:
		return "invalid"
	}
}

// NormalizeRoot trims path and converts backslashes to forward slashes.
func NormalizeRoot(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || strings.ContainsAny(path, invalidRootChars) {
		return "", ErrInvalidRoot
	}
	return strings.ReplaceAll(path, `\`, "/"), nil
}

// CheckRoot reports the status of path against the host and saved.
func CheckRoot(ctx context.Context, client *bridge.Client, path, saved string) (RootStatus, error) {
	path, err := NormalizeRoot(path)
	if err != nil {
		return RootInvalid, nil
	}
	exists, err := client.PathExists(ctx, path)
	if err != nil {
		return RootInvalid, err
	}
	switch {
	case !exists:
		return RootInvalid, nil
	case path == saved:
		return RootSaved, nil
	default:
		return RootUnsaved, nil
	}
}

// SetRoot normalizes and persists path, then checks it. A path the host
// cannot find is still saved and reported as RootInvalid.
func SetRoot(ctx context.Context, kv settings.Store, client *bridge.Client, path string) (string, RootStatus, error) {
	path, err := NormalizeRoot(path)
	if err != nil {
		return "", RootInvalid, err
	}
	if err := kv.Set(ctx, settings.KeyRootDirectory, path); err != nil {
		return path, RootInvalid, fmt.Errorf("save root directory: %w", err)
	}
	status, err := CheckRoot(ctx, client, path, path)
	return path, status, err
}
