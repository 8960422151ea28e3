// Package handle keeps the playable audio handles of the application.
//
// A handle is registered once with its bytes, can be resolved to a local
// file any number of times and must be released when it is no longer shown.
package handle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/igolaizola/sonicremix/pkg/audio"
	"github.com/igolaizola/sonicremix/pkg/filestore"
	"github.com/oklog/ulid/v2"
)

var ErrNotFound = errors.New("handle: not found")

type Handle struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MediaType string    `json:"media_type"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handle) key() string {
	return h.ID + audio.Extension(h.MediaType)
}

type Store struct {
	fs      *filestore.Store
	cache   string
	debug   bool
	lck     sync.Mutex
	handles map[string]*Handle
}

// New creates a handle store backed by the file store. Resolved handles are
// kept in the cache folder.
func New(fs *filestore.Store, cache string, debug bool) (*Store, error) {
	if cache == "" {
		cache = filepath.Join(".cache", "handles")
	}
	if err := os.MkdirAll(cache, 0755); err != nil {
		return nil, fmt.Errorf("handle: couldn't create cache %q: %w", cache, err)
	}
	return &Store{
		fs:      fs,
		cache:   cache,
		debug:   debug,
		handles: map[string]*Handle{},
	}, nil
}

// Register stores the data and returns a new handle for it.
func (s *Store) Register(ctx context.Context, name, mediaType string, data []byte) (*Handle, error) {
	h := &Handle{
		ID:        ulid.Make().String(),
		Name:      name,
		MediaType: mediaType,
		Size:      len(data),
		CreatedAt: time.Now().UTC(),
	}
	path := filepath.Join(s.cache, h.key())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("handle: couldn't write %s: %w", path, err)
	}
	if err := s.fs.Set(ctx, path, h.key(), mediaType); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("handle: couldn't store %s: %w", h.ID, err)
	}
	s.lck.Lock()
	s.handles[h.ID] = h
	s.lck.Unlock()
	if s.debug {
		log.Printf("handle: registered %s %s (%s, %d bytes)\n", h.ID, name, mediaType, len(data))
	}
	return h, nil
}

// Get returns the handle metadata.
func (s *Store) Get(id string) (*Handle, error) {
	s.lck.Lock()
	defer s.lck.Unlock()
	h, ok := s.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return h, nil
}

// Path resolves the handle to a local file, downloading it if the cached
// copy is gone.
func (s *Store) Path(ctx context.Context, id string) (string, *Handle, error) {
	h, err := s.Get(id)
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(s.cache, h.key())
	if _, err := os.Stat(path); err == nil {
		return path, h, nil
	}
	if err := s.fs.Get(ctx, path, h.key()); err != nil {
		return "", nil, fmt.Errorf("handle: couldn't resolve %s: %w", id, err)
	}
	return path, h, nil
}

// Bytes resolves the handle and reads its content.
func (s *Store) Bytes(ctx context.Context, id string) ([]byte, *Handle, error) {
	path, h, err := s.Path(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("handle: couldn't read %s: %w", id, err)
	}
	return b, h, nil
}

// Release forgets the handle and deletes its stored bytes. Releasing an
// unknown handle is a no-op.
func (s *Store) Release(ctx context.Context, id string) error {
	s.lck.Lock()
	h, ok := s.handles[id]
	delete(s.handles, id)
	s.lck.Unlock()
	if !ok {
		return nil
	}
	path := filepath.Join(s.cache, h.key())
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("handle: couldn't remove %s: %w", path, err)
	}
	if err := s.fs.Delete(ctx, h.key()); err != nil {
		return fmt.Errorf("handle: couldn't delete %s: %w", id, err)
	}
	if s.debug {
		log.Printf("handle: released %s\n", id)
	}
	return nil
}

// Len returns the number of live handles.
func (s *Store) Len() int {
	s.lck.Lock()
	defer s.lck.Unlock()
	return len(s.handles)
}
