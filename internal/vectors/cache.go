package vectors

import (
	"context"
	"fmt"
	"sort"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Ref names a vector set or carries one that is already loaded.
type Ref struct {
	name    string
	vectors Vectors
}

// Named refers to a vector set by its symbolic name, e.g. "fasttext.en.bin".
func Named(name string) Ref {
	return Ref{name: name}
}

// Loaded passes an already loaded vector set through resolution unchanged.
func Loaded(v Vectors) Ref {
	return Ref{vectors: v}
}

// Names converts symbolic names into refs.
func Names(names ...string) []Ref {
	refs := make([]Ref, len(names))
	for i, name := range names {
		refs[i] = Named(name)
	}
	return refs
}

// Name returns the symbolic name, empty for loaded refs.
func (r Ref) Name() string {
	return r.name
}

// Cache loads each named vector set at most once for its lifetime. Entries
// never expire; vector sets are few and large, and reloading costs far more
// than the memory they hold.
type Cache struct {
	loader   *Loader
	cacheDir string
	items    *gocache.Cache
	group    singleflight.Group
}

// NewCache returns a cache that loads through loader. cacheDir is used when
// Resolve is called without one.
func NewCache(loader *Loader, cacheDir string) *Cache {
	if loader == nil {
		loader = NewLoader(nil)
	}
	return &Cache{
		loader:   loader,
		cacheDir: cacheDir,
		items:    gocache.New(gocache.NoExpiration, 0),
	}
}

// Resolve returns one loaded vector set per ref, in order. Named refs are
// served from the cache or loaded into it under their original name.
func (c *Cache) Resolve(ctx context.Context, cacheDir string, refs ...Ref) ([]Vectors, error) {
	out := make([]Vectors, 0, len(refs))
	for _, ref := range refs {
		if ref.vectors != nil {
			out = append(out, ref.vectors)
			continue
		}
		v, err := c.get(ctx, cacheDir, ref.name)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns the cached vector set for name without loading it.
func (c *Cache) Get(name string) (Vectors, bool) {
	v, ok := c.items.Get(name)
	if !ok {
		return nil, false
	}
	return v.(Vectors), true
}

// Names returns the cached names in sorted order.
func (c *Cache) Names() []string {
	items := c.items.Items()
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Cache) get(ctx context.Context, cacheDir, name string) (Vectors, error) {
	if v, ok := c.Get(name); ok {
		return v, nil
	}
	if name == "" {
		return nil, fmt.Errorf("vector name is empty")
	}
	if cacheDir == "" {
		cacheDir = c.cacheDir
	}
	dir, err := ResolveCacheDir(cacheDir)
	if err != nil {
		return nil, err
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		if v, ok := c.Get(name); ok {
			return v, nil
		}
		v, err := ParseName(name).Load(ctx, c.loader, dir)
		if err != nil {
			return nil, err
		}
		c.items.Set(name, v, gocache.NoExpiration)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Vectors), nil
}
