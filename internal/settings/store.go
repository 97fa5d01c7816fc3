// Package settings persists the panel's durable key/value state: the
// library root and the favourites list.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fruitsalade/studiokit/internal/config"
	"github.com/fruitsalade/studiokit/internal/metrics"
)

// Keys the panel stores.
const (
	KeyRootDirectory = "savedDirectory"
	KeyFavourites    = "favourites"
)

// ErrNotFound is returned by Get for a key that was never set.
var ErrNotFound = errors.New("settings: key not found")

// Store is a durable string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetOr returns the stored value for key, or fallback when the key is
// missing. Other errors are returned.
func GetOr(ctx context.Context, s Store, key, fallback string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	return v, nil
}

// NewFromConfig opens the backend named by cfg.Backend.
func NewFromConfig(ctx context.Context, cfg config.SettingsConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "file":
		s, err = OpenFile(cfg.Path)
	case "sqlite":
		s, err = OpenSQLite(ctx, cfg.Path)
	case "postgres":
		s, err = OpenPostgres(ctx, cfg.DatabaseURL)
	case "s3":
		s, err = NewS3(ctx, S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
	case "memory":
		s = NewMemory()
	default:
		return nil, fmt.Errorf("unknown settings backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(cfg.Backend, s), nil
}

// Instrument wraps s so every operation is timed and counted.
func Instrument(backend string, s Store) Store {
	return &instrumented{backend: backend, next: s}
}

type instrumented struct {
	backend string
	next    Store
}

func (i *instrumented) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	v, err := i.next.Get(ctx, key)
	metrics.RecordSettingsOp(i.backend, "get", time.Since(start), err == nil || errors.Is(err, ErrNotFound))
	return v, err
}

func (i *instrumented) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := i.next.Set(ctx, key, value)
	metrics.RecordSettingsOp(i.backend, "set", time.Since(start), err == nil)
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.next.Delete(ctx, key)
	metrics.RecordSettingsOp(i.backend, "delete", time.Since(start), err == nil)
	return err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
