package geometry

import (
	"container/list"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"strings"
	"sync"

	"github.com/EmpoweredVote/EV-Globe/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Loader is what the locators need from a Store.
type Loader interface {
	LoadWorld() (*Collection, error)
	LoadCountry(code string) (*Collection, error)
	LoadRegion(hid string) (*Collection, error)
}

type Option func(*Store)

// WithMaxEntries bounds the number of country and region collections kept in
// memory. The world collection is never evicted. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

type entry struct {
	key  string
	coll *Collection
	err  error
	elem *list.Element
}

// Store memoises parsed boundary files per key. Concurrent loads of the same
// key share one read; loads of different keys do not block each other.
// Missing and malformed files are remembered too, until invalidated.
type Store struct {
	src        Source
	maxEntries int

	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List
	warned  map[string]struct{}
	gens    map[string]uint64
	epoch   uint64

	group singleflight.Group
}

func NewStore(src Source, opts ...Option) *Store {
	s := &Store{
		src:     src,
		entries: make(map[string]*entry),
		lru:     list.New(),
		warned:  make(map[string]struct{}),
		gens:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) LoadWorld() (*Collection, error) {
	return s.load(WorldKey)
}

// LoadCountry returns the region-level polygons of a country (ISO3).
func (s *Store) LoadCountry(code string) (*Collection, error) {
	return s.load(strings.ToUpper(strings.TrimSpace(code)))
}

// LoadRegion returns the sub-region polygons inside a region, keyed by the
// region's hierarchical id (e.g. "ESP.1").
func (s *Store) LoadRegion(hid string) (*Collection, error) {
	hid = strings.TrimSpace(hid)
	if len(hid) >= 3 {
		hid = strings.ToUpper(hid[:3]) + hid[3:]
	}
	return s.load(hid)
}

// Invalidate drops whatever is cached for key so the next load reads the
// file again.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.remove(e)
	}
	delete(s.warned, key)
	s.gens[key]++
	s.mu.Unlock()
	s.group.Forget(key)
}

func (s *Store) InvalidateAll() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.entries = make(map[string]*entry)
	s.lru.Init()
	s.warned = make(map[string]struct{})
	s.epoch++
	metrics.GeometryCacheEntries.Set(0)
	s.mu.Unlock()

	for _, k := range keys {
		s.group.Forget(k)
	}
}

// Len is the number of cached keys, including remembered failures.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) load(key string) (*Collection, error) {
	if e, ok := s.cached(key); ok {
		return e.coll, e.err
	}

	v, _, _ := s.group.Do(key, func() (any, error) {
		// another flight may have finished between the miss and Do
		if e, ok := s.cached(key); ok {
			return e, nil
		}
		gen := s.generation(key)
		e, cache := s.read(key)
		if cache {
			s.put(e, gen)
		}
		return e, nil
	})
	e := v.(*entry)
	return e.coll, e.err
}

// read loads and parses one file. The bool reports whether the outcome is
// stable enough to remember; transient I/O errors are not.
func (s *Store) read(key string) (*entry, bool) {
	rc, err := s.src.Open(key)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, ErrInvalidKey):
			metrics.GeometryLoadsTotal.WithLabelValues("missing").Inc()
			s.warnOnce(key, "[geometry] No boundary file for %s", key)
			return &entry{key: key, err: fmt.Errorf("%s: %w", key, ErrMissingFile)}, true
		default:
			metrics.GeometryLoadsTotal.WithLabelValues("error").Inc()
			log.Printf("[geometry] Failed to open %s: %v", key, err)
			return &entry{key: key, err: fmt.Errorf("%w: %s: %v", ErrNotFound, key, err)}, false
		}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		metrics.GeometryLoadsTotal.WithLabelValues("error").Inc()
		log.Printf("[geometry] Failed to read %s: %v", key, err)
		return &entry{key: key, err: fmt.Errorf("%w: %s: %v", ErrNotFound, key, err)}, false
	}

	coll, err := Decode(key, data)
	if err != nil {
		metrics.GeometryLoadsTotal.WithLabelValues("malformed").Inc()
		s.warnOnce(key, "[geometry] Ignoring %s: %v", key, err)
		return &entry{key: key, err: err}, true
	}

	metrics.GeometryLoadsTotal.WithLabelValues("ok").Inc()
	log.Printf("[geometry] Loaded %s (%d features)", key, len(coll.Features))
	return &entry{key: key, coll: coll}, true
}

func (s *Store) cached(key string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok && e.elem != nil {
		s.lru.MoveToFront(e.elem)
	}
	return e, ok
}

// generation changes whenever key is invalidated. A read that started under
// an older generation must not be cached.
func (s *Store) generation(key string) [2]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return [2]uint64{s.epoch, s.gens[key]}
}

func (s *Store) put(e *entry, gen [2]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != [2]uint64{s.epoch, s.gens[e.key]} {
		return
	}

	if old, ok := s.entries[e.key]; ok {
		s.remove(old)
	}
	s.entries[e.key] = e
	if s.maxEntries > 0 && e.key != WorldKey {
		e.elem = s.lru.PushFront(e)
		for s.lru.Len() > s.maxEntries {
			oldest := s.lru.Back().Value.(*entry)
			s.remove(oldest)
		}
	}
	metrics.GeometryCacheEntries.Set(float64(len(s.entries)))
}

// remove must be called with mu held.
func (s *Store) remove(e *entry) {
	if e.elem != nil {
		s.lru.Remove(e.elem)
		e.elem = nil
	}
	delete(s.entries, e.key)
	metrics.GeometryCacheEntries.Set(float64(len(s.entries)))
}

func (s *Store) warnOnce(key, format string, args ...any) {
	s.mu.Lock()
	_, seen := s.warned[key]
	if !seen {
		s.warned[key] = struct{}{}
	}
	s.mu.Unlock()
	if !seen {
		log.Printf(format, args...)
	}
}
