// Package blob stores synthesized audio clips and hands back the URL path
// they are served under.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store is the audio object storage abstraction.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes one clip and returns the URL path it will be served from.
	// ext must include the leading dot (".mp3", ".wav").
	Put(ctx context.Context, data []byte, ext string) (string, error)
}

// Compile-time interface check.
var _ Store = (*FSStore)(nil)

// FSStore is a [Store] that writes clips to a local directory served by the
// HTTP static handler.
type FSStore struct {
	dir     string
	urlBase string
}

// NewFSStore creates an [FSStore] rooted at dir, creating it if needed.
// urlBase is the URL prefix clips are served under (e.g. "/static/audio").
func NewFSStore(dir, urlBase string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create dir %s: %w", dir, err)
	}
	return &FSStore{
		dir:     dir,
		urlBase: "/" + trimSlashes(urlBase),
	}, nil
}

// Dir returns the directory clips are written to.
func (s *FSStore) Dir() string { return s.dir }

// Put implements [Store]. Clips get a random name so URLs are never reused
// across turns.
func (s *FSStore) Put(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("blob: data must not be empty")
	}

	name := fmt.Sprintf("response_%s%s", uuid.NewString(), ext)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("blob: write %s: %w", name, err)
	}
	return s.urlBase + "/" + name, nil
}

func trimSlashes(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
