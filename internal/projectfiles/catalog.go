package projectfiles

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/seantiz/bambubridge/internal/model"
)

// CacheDir is the subfolder the printer stores sliced uploads in.
const CacheDir = "cache"

// Extensions lists the project file suffixes the catalog indexes, in the
// order they are tried when resolving a bare stem.
var Extensions = []string{".gcode.3mf", ".3mf", ".gcode"}

// Catalog is a directory-backed index of project files. Lookups are served
// from an in-memory cache that is rebuilt on Refresh or on a lookup miss.
// It is safe for concurrent use.
type Catalog struct {
	root   string
	logger *slog.Logger

	mu      sync.RWMutex
	files   map[string]*model.FileInfo // keyed by lowercase file name
	aliases map[string]string          // dos name -> file name
}

// NewCatalog creates a catalog over root. The directory is scanned lazily on
// the first lookup.
func NewCatalog(root string, logger *slog.Logger) *Catalog {
	return &Catalog{
		root:    root,
		logger:  logger,
		files:   make(map[string]*model.FileInfo),
		aliases: make(map[string]string),
	}
}

// Root returns the directory the catalog indexes.
func (c *Catalog) Root() string {
	return c.root
}

// Refresh rescans the root directory and its cache subfolder.
func (c *Catalog) Refresh() error {
	files := make(map[string]*model.FileInfo)
	aliases := make(map[string]string)
	taken := make(map[string]bool)

	for _, dir := range []string{"", CacheDir} {
		if err := c.scan(dir, files, aliases, taken); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.files = files
	c.aliases = aliases
	c.mu.Unlock()

	c.logger.Debug("project files refreshed", "root", c.root, "count", len(files))
	return nil
}

func (c *Catalog) scan(dir string, files map[string]*model.FileInfo, aliases map[string]string, taken map[string]bool) error {
	entries, err := os.ReadDir(filepath.Join(c.root, filepath.FromSlash(dir)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan project files: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !hasProjectExt(entry.Name()) {
			continue
		}
		name := strings.ToLower(entry.Name())
		if _, dup := files[name]; dup {
			// Root entries win over the cache folder.
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat %s: %w", entry.Name(), err)
		}

		info := newFileInfo(dir, entry.Name(), fi, taken)
		files[name] = info
		aliases[info.DosName] = name
		taken[name] = true
		taken[info.DosName] = true
	}
	return nil
}

func newFileInfo(dir, name string, fi fs.FileInfo, taken map[string]bool) *model.FileInfo {
	lower := strings.ToLower(name)
	return &model.FileInfo{
		Name:       lower,
		DosName:    dosName(lower, taken),
		Path:       path.Join(dir, name),
		Size:       fi.Size(),
		ModifiedAt: fi.ModTime().UTC(),
	}
}

func hasProjectExt(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// List returns every cataloged file sorted by name. It rescans first.
func (c *Catalog) List() ([]*model.FileInfo, error) {
	if err := c.Refresh(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*model.FileInfo, 0, len(c.files))
	for _, info := range c.files {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b *model.FileInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// GetFileByName resolves a device-reported name to a cataloged file. Only the
// base name is considered. The name may be a DOS alias, an exact file name or
// a stem to which the known project extensions are appended. A miss triggers
// one rescan. It returns nil when nothing matches or name is empty.
func (c *Catalog) GetFileByName(name string) *model.FileInfo {
	name = strings.ToLower(path.Base(filepath.ToSlash(strings.TrimSpace(name))))
	if name == "" || name == "." || name == "/" {
		return nil
	}

	if info := c.lookup(name); info != nil {
		return info
	}
	if err := c.Refresh(); err != nil {
		c.logger.Warn("refresh project files", "error", err)
		return nil
	}
	return c.lookup(name)
}

func (c *Catalog) lookup(name string) *model.FileInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if info := c.cached(name); info != nil {
		return info
	}

	stem := trimProjectExt(name)
	for _, ext := range Extensions {
		if info := c.cached(stem + ext); info != nil {
			return info
		}
	}
	return nil
}

// cached must be called with mu held. An exact name wins over an alias.
func (c *Catalog) cached(name string) *model.FileInfo {
	if info, ok := c.files[name]; ok {
		return info
	}
	return c.files[c.aliases[name]]
}

func trimProjectExt(name string) string {
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}
