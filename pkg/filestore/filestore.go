package filestore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/igolaizola/sonicremix/pkg/filestore/local"
	"github.com/igolaizola/sonicremix/pkg/filestore/s3"
	"github.com/igolaizola/sonicremix/pkg/filestore/tgstore"
	"github.com/igolaizola/sonicremix/pkg/storage"
)

type fs interface {
	Upload(ctx context.Context, path, name, mediaType string) error
	Download(ctx context.Context, path, name string) error
	Delete(ctx context.Context, name string) error
}

type Store struct {
	fs fs
}

// Set uploads the file at path with the given name.
func (s *Store) Set(ctx context.Context, path, name, mediaType string) error {
	return s.fs.Upload(ctx, path, name, mediaType)
}

// Get downloads the named file to path.
func (s *Store) Get(ctx context.Context, path, name string) error {
	return s.fs.Download(ctx, path, name)
}

func (s *Store) Delete(ctx context.Context, name string) error {
	return s.fs.Delete(ctx, name)
}

// New creates a file store. The database store is only required by the
// telegram backend, which keeps its message references there.
func New(typ, conn, proxy string, debug bool, store *storage.Store) (*Store, error) {
	var fs fs
	switch typ {
	case "telegram":
		if store == nil {
			return nil, fmt.Errorf("filestore: telegram storage requires a database")
		}
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid telegram connection string %q", conn)
		}
		token := split[0]
		chat, err := strconv.ParseInt(split[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filestore: invalid telegram chat id %q: %w", split[1], err)
		}
		candidate, err := tgstore.New(token, chat, proxy, debug, store)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "s3":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 connection string %q", conn)
		}
		auth := strings.Split(split[0], ":")
		if len(auth) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 auth string %q", conn)
		}
		key := auth[0]
		secret := auth[1]
		loc := strings.Split(split[1], ".")
		if len(loc) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 location string %q", conn)
		}
		bucket := loc[0]
		region := loc[1]
		candidate, err := s3.New(key, secret, region, bucket, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "local", "":
		if conn == "" {
			conn = "handles"
		}
		candidate, err := local.New(conn, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	default:
		return nil, fmt.Errorf("filestore: unknown file storage type %q", typ)
	}
	return &Store{fs: fs}, nil
}
