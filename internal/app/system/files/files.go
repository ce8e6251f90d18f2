// Package files stores documents derived from applications, such as the
// archived decision letter, under a root directory.
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidPath is returned for paths that escape the store root.
var ErrInvalidPath = errors.New("files: invalid path")

// Store keeps derived files on an afero filesystem. Paths handed out and
// accepted are relative, slash-separated and rooted at the store.
type Store struct {
	fs afero.Fs
}

// New roots a Store at dir on the OS filesystem, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewWithFs wraps an existing filesystem; tests pass afero.NewMemMapFs().
func NewWithFs(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// NotificationPath is where the letter of application id decided at t is
// written: notifications/YYYY/MM/<uuid>-<id>.html.
func NotificationPath(id primitive.ObjectID, t time.Time) string {
	t = t.UTC()
	return path.Join("notifications",
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		uuid.NewString()+"-"+id.Hex()+".html")
}

func clean(p string) (string, error) {
	c := path.Clean("/" + strings.TrimSpace(p))
	if c == "/" || strings.Contains(p, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return strings.TrimPrefix(c, "/"), nil
}

// SaveNotification writes the letter of application id and returns its path.
func (s *Store) SaveNotification(id primitive.ObjectID, decidedAt time.Time, content []byte) (string, error) {
	p := NotificationPath(id, decidedAt)
	if err := s.fs.MkdirAll(path.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("create notification dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, p, content, 0o640); err != nil {
		return "", fmt.Errorf("write notification: %w", err)
	}
	return p, nil
}

// Open returns a reader for the file at p.
func (s *Store) Open(p string) (io.ReadCloser, error) {
	c, err := clean(p)
	if err != nil {
		return nil, err
	}
	return s.fs.Open(c)
}

// Remove deletes the file at p. A missing file yields an error matching
// os.ErrNotExist.
func (s *Store) Remove(p string) error {
	c, err := clean(p)
	if err != nil {
		return err
	}
	return s.fs.Remove(c)
}

// Exists reports whether a file is present at p.
func (s *Store) Exists(p string) (bool, error) {
	c, err := clean(p)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, c)
}
