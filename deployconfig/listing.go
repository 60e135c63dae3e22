package deployconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Source implementations for missing files
// or directories, and by Get for an unknown environment. A missing
// config directory is not an error: it lists as empty.
var ErrNotFound = errors.New("not found")

// FileInfo is one entry of a config directory listing.
type FileInfo struct {
	Name string
	Path string
}

// Source reads versioned repository content. Listing is non-recursive.
type Source interface {
	ListConfigFiles(ctx context.Context, dir, ref string) ([]FileInfo, error)
	ReadFile(ctx context.Context, path, ref string) ([]byte, error)
}

// Entry is the per-file result of a listing: either a parsed config or
// the error that file produced. One file failing never blocks the
// others.
type Entry struct {
	Config *Config
	Err    error
}

// Listing maps environment id to its entry. A file that fails to parse
// is keyed by its filename-derived id.
type Listing map[string]Entry

// List reads every *.yml / *.yaml file in dir at ref and parses each
// independently. Id collisions are recorded against the colliding file,
// not the one that claimed the id first.
func List(ctx context.Context, src Source, dir, ref string) (Listing, error) {
	files, err := src.ListConfigFiles(ctx, dir, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Listing{}, nil
		}
		return nil, fmt.Errorf("listing %s at %s: %w", dir, ref, err)
	}

	listing := make(Listing, len(files))
	for _, f := range files {
		if !isConfigFile(f.Name) {
			continue
		}

		key := Stem(f.Name)

		raw, err := src.ReadFile(ctx, f.Path, ref)
		if err != nil {
			listing[key] = Entry{Err: fmt.Errorf("reading %s: %w", f.Path, err)}
			continue
		}

		cfg, err := Parse(f.Path, raw)
		if err != nil {
			listing[key] = Entry{Err: err}
			continue
		}

		if _, taken := listing[cfg.ID]; taken {
			listing[key] = Entry{Err: &ValidationError{
				Path:   f.Path,
				Field:  "id",
				Reason: fmt.Sprintf("%q is already used by another environment", cfg.ID),
			}}
			continue
		}
		listing[cfg.ID] = Entry{Config: cfg}
	}

	return listing, nil
}

// Get loads a single environment's config from dir at ref.
func Get(ctx context.Context, src Source, dir, ref, env string) (*Config, error) {
	listing, err := List(ctx, src, dir, ref)
	if err != nil {
		return nil, err
	}

	entry, ok := listing[env]
	if !ok {
		return nil, fmt.Errorf("environment %q: %w", env, ErrNotFound)
	}
	if entry.Err != nil {
		return nil, entry.Err
	}
	return entry.Config, nil
}

func isConfigFile(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}
