package source

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Cache stores fetched products under Root, keyed by identifier. Each
// identifier maps to one file; path separators in the identifier become
// directories and anything that could escape Root is replaced.
type Cache struct {
	Root string
}

// NewCache returns a cache rooted at dir, creating it if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache %s", dir)
	}
	return &Cache{Root: dir}, nil
}

var unsafe = strings.NewReplacer("*", "_", "?", "_", ":", "_", "\\", "_", "..", "_")

// Path returns the file that caches id.
func (c *Cache) Path(id string) string {
	parts := strings.Split(unsafe.Replace(id), "/")
	clean := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			clean = append(clean, p)
		}
	}
	return filepath.Join(append([]string{c.Root}, clean...)...)
}

// Get returns the cached content of id.
func (c *Cache) Get(id string) ([]byte, bool) {
	data, err := os.ReadFile(c.Path(id))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data for id. The file is written under a temporary name and
// renamed so readers never see a partial file.
func (c *Cache) Put(id string, data []byte) error {
	name := c.Path(id)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return errors.Wrap(err, "cache")
	}
	tmp, err := os.CreateTemp(filepath.Dir(name), ".part-*")
	if err != nil {
		return errors.Wrap(err, "cache")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "cache %s", id)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "cache %s", id)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), name), "cache %s", id)
}

// Clear removes every cached product below prefix, or the whole cache
// for an empty prefix.
func (c *Cache) Clear(prefix string) error {
	dir := c.Root
	if prefix != "" {
		dir = c.Path(prefix)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "clear cache %s", dir)
	}
	return os.MkdirAll(c.Root, 0o755)
}
