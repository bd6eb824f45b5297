package xsd

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/spf13/afero"
)

// DefaultCacheSize is the number of compiled schemas a SchemaCache keeps
// when created with a non-positive size.
const DefaultCacheSize = 64

// SchemaCache keeps compiled schemas by location. Concurrent requests for
// the same location load it once; the least recently used schema is evicted
// once the cache is full.
type SchemaCache struct {
	mu      sync.Mutex
	entries *lru.Cache
	loader  *SchemaLoader
	logger  *slog.Logger
}

// schemaEntry holds one load result
type schemaEntry struct {
	once   sync.Once
	schema *Schema
	err    error
}

// NewSchemaCache creates a cache holding up to size schemas read from the
// OS filesystem.
func NewSchemaCache(size int) *SchemaCache {
	return NewSchemaCacheWithLoader(size, &SchemaLoader{Fs: afero.NewOsFs()})
}

// NewSchemaCacheWithLoader creates a cache that loads schemas with loader.
func NewSchemaCacheWithLoader(size int, loader *SchemaLoader) *SchemaCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	logger := loader.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sc := &SchemaCache{
		entries: lru.New(size),
		loader:  loader,
		logger:  logger,
	}
	sc.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		sc.logger.Debug("evicted schema from cache", "location", key)
	}
	return sc
}

// Get returns the compiled schema at location, loading it on first use.
// Failed loads are not kept, so a later Get retries.
func (sc *SchemaCache) Get(location string) (*Schema, error) {
	key := filepath.Clean(location)

	sc.mu.Lock()
	var entry *schemaEntry
	if v, ok := sc.entries.Get(key); ok {
		entry = v.(*schemaEntry)
	} else {
		entry = &schemaEntry{}
		sc.entries.Add(key, entry)
	}
	sc.mu.Unlock()

	entry.once.Do(func() {
		entry.schema, entry.err = sc.loader.Load(key)
	})
	if entry.err != nil {
		sc.mu.Lock()
		if v, ok := sc.entries.Get(key); ok && v.(*schemaEntry) == entry {
			sc.entries.Remove(key)
		}
		sc.mu.Unlock()
	}
	return entry.schema, entry.err
}

// Len returns the number of cached schemas.
func (sc *SchemaCache) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.entries.Len()
}

// Remove drops the schema at location from the cache.
func (sc *SchemaCache) Remove(location string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.entries.Remove(filepath.Clean(location))
}

// Clear removes all cached schemas
func (sc *SchemaCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.entries.Clear()
}

// SchemaRegistry picks the schema to validate a document with from the
// namespace of its root element.
type SchemaRegistry struct {
	mu            sync.RWMutex
	namespaces    map[string]*Schema
	defaultSchema *Schema
	cache         *SchemaCache
}

// NewSchemaRegistry creates a registry loading schema files through cache.
// A nil cache gets a default sized one.
func NewSchemaRegistry(cache *SchemaCache) *SchemaRegistry {
	if cache == nil {
		cache = NewSchemaCache(0)
	}
	return &SchemaRegistry{
		namespaces: make(map[string]*Schema),
		cache:      cache,
	}
}

// Register registers a schema for a namespace
func (sr *SchemaRegistry) Register(namespace string, schema *Schema) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.namespaces[namespace] = schema
}

// RegisterFile registers the schema at location for every target
// namespace it defines.
func (sr *SchemaRegistry) RegisterFile(location string) error {
	schema, err := sr.cache.Get(location)
	if err != nil {
		return err
	}
	for _, ns := range schema.TargetNamespaces {
		sr.Register(ns, schema)
	}
	return nil
}

// SetDefault sets the schema used for root elements whose namespace has
// no registered schema.
func (sr *SchemaRegistry) SetDefault(schema *Schema) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.defaultSchema = schema
}

// GetForNamespace retrieves the schema for a namespace
func (sr *SchemaRegistry) GetForNamespace(namespace string) (*Schema, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	if schema, ok := sr.namespaces[namespace]; ok {
		return schema, true
	}
	return sr.defaultSchema, sr.defaultSchema != nil
}

// Validate validates root against the schema registered for its namespace.
// It returns ErrSchemaNotLoaded when no schema applies.
func (sr *SchemaRegistry) Validate(root *Node) (*Result, error) {
	if root == nil {
		return nil, &ParseError{Message: "document has no root element"}
	}
	schema, ok := sr.GetForNamespace(root.Name.Namespace)
	if !ok {
		return nil, ErrSchemaNotLoaded
	}
	return Validate(root, schema)
}
