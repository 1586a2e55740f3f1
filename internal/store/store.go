// Package store keeps uploaded PDFs as flat files in one directory.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// maxNameAttempts bounds the collision suffixes tried by Save.
const maxNameAttempts = 1000

// ErrInvalidName is returned for names that would escape the upload root.
var ErrInvalidName = errors.New("invalid filename")

// FileInfo describes one stored file.
type FileInfo struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Store is a directory of uploaded files plus a per-file lock table.
type Store struct {
	root string
	now  func() time.Time

	mu    sync.Mutex
	locks map[string]*fileLock
}

type fileLock struct {
	mu   sync.Mutex
	refs int
}

// New opens (creating if needed) the upload directory at root.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		root:  root,
		now:   time.Now,
		locks: make(map[string]*fileLock),
	}, nil
}

// Root returns the upload directory.
func (s *Store) Root() string { return s.root }

// Save writes r under "<unix seconds>_<sanitized name>" and returns the
// stored name. When that name is taken a counter is added before the
// extension ("_1", "_2", ...). The file appears atomically and never replaces
// an existing upload.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	clean := SecureFilename(name)
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	base := fmt.Sprintf("%d_%s", s.now().Unix(), clean)

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := range maxNameAttempts {
		stored := base
		if n > 0 {
			stored = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		// Link fails rather than replacing an existing file.
		err := os.Link(tmpPath, filepath.Join(s.root, stored))
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("store upload: %w", err)
		}
	}
	return "", fmt.Errorf("store upload: no free name for %q", base)
}

// Path resolves a stored name to its location on disk.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, name), nil
}

// Exists reports whether name is a stored regular file.
func (s *Store) Exists(name string) bool {
	p, err := s.Path(name)
	if err != nil {
		return false
	}
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// Remove deletes a stored file. Removing a missing file is not an error.
func (s *Store) Remove(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// List returns the stored files sorted by name.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Filename:   e.Name(),
			Size:       info.Size(),
			UploadedAt: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil
}

// Lock serializes access to one stored file and returns the unlock func.
func (s *Store) Lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &fileLock{}
		s.locks[name] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, name)
		}
		s.mu.Unlock()
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// SecureFilename reduces name to an ASCII-only base name safe to store.
// It returns "" when nothing usable remains.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)
	var sb strings.Builder
	for _, r := range name {
		if r < 0x80 {
			sb.WriteRune(r)
		}
	}
	name = sb.String()
	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = whitespace.ReplaceAllString(strings.TrimSpace(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}
