// Package source fetches the raw bytes of meteorological products. A
// Source resolves an identifier (a path, an object key or a service
// directory and file name) to the complete content; decoders consume the
// bytes and never fetch anything themselves.
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Source reads a whole product into memory.
type Source interface {
	ReadAll(ctx context.Context, id string) ([]byte, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, id string) ([]byte, error)

// ReadAll implements Source.
func (f Func) ReadAll(ctx context.Context, id string) ([]byte, error) { return f(ctx, id) }

// File reads products from the local file system, relative to Root when
// the identifier is not absolute.
type File struct {
	Root string
}

// ReadAll implements Source.
func (f File) ReadAll(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := id
	if f.Root != "" && !filepath.IsAbs(name) {
		name = filepath.Join(f.Root, name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	logrus.Debugf("Read %s (%s)", name, humanize.Bytes(uint64(len(data))))
	return data, nil
}

// Cached reads through a directory cache: hits are served from Cache,
// misses are fetched from Source and stored. Wildcard identifiers name
// whatever is latest and always go to Source.
type Cached struct {
	Source Source
	Cache  *Cache
}

// ReadAll implements Source.
func (c Cached) ReadAll(ctx context.Context, id string) ([]byte, error) {
	if strings.ContainsAny(id, "*?") {
		return c.Source.ReadAll(ctx, id)
	}
	if data, ok := c.Cache.Get(id); ok {
		logrus.Debugf("Cache hit %s (%s)", id, humanize.Bytes(uint64(len(data))))
		return data, nil
	}
	data, err := c.Source.ReadAll(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Put(id, data); err != nil {
		logrus.Warnf("Caching %s: %v", id, err)
	}
	return data, nil
}
