package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rescp17/udpFileCourier/internal/util"
)

// VersionTimeFormat is the timestamp suffix appended to archived files.
// Seconds resolution: two archives of the same name within one second
// collide, which is a known limitation rather than handled behavior.
const VersionTimeFormat = "20060102-150405"

var ErrInvalidName = errors.New("invalid file name")

// Store is the server's view of the filesystem: a storage root holding
// served files and a backup directory receiving versioned copies of
// completed uploads. It arbitrates nothing: concurrent writers to the
// same name race, and the result is undefined.
type Store struct {
	root   string
	backup string

	// now is the clock used for version naming, replaceable in tests.
	now func() time.Time
}

// New returns a Store over the given root and backup directories.
func New(root, backup string) *Store {
	return &Store{root: root, backup: backup, now: time.Now}
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// Backup returns the backup directory.
func (s *Store) Backup() string {
	return s.backup
}

// EnsureDirs creates the storage root and backup directory if they do not
// already exist.
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.root, s.backup} {
		if err := util.EnsureDir(dir); err != nil {
			return err
		}
	}
	return nil
}

// resolve sanitizes name and joins it under dir. Any directory components
// are stripped so a peer-supplied name can never escape the store.
func resolve(dir, name string) (string, error) {
	clean := filepath.Base(strings.TrimSpace(name))
	if clean == "" || clean == "." || clean == ".." || clean == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(dir, clean), nil
}

// Open opens a stored file for reading. The returned error satisfies
// errors.Is(err, fs.ErrNotExist) when the file is absent.
func (s *Store) Open(name string) (*os.File, error) {
	path, err := resolve(s.root, name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Create creates (or truncates) a stored file for writing.
func (s *Store) Create(name string) (*os.File, error) {
	path, err := resolve(s.root, name)
	if err != nil {
		return nil, err
	}
	return os.Create(path)
}

// Remove deletes a stored file. Removed files are not backed up and
// cannot be recovered.
func (s *Store) Remove(name string) error {
	path, err := resolve(s.root, name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Archive copies a completed upload into the backup directory under a
// timestamp-versioned name and returns the backup path. The original
// stays in the storage root so it remains servable.
func (s *Store) Archive(name string) (string, error) {
	srcPath, err := resolve(s.root, name)
	if err != nil {
		return "", err
	}
	versioned := fmt.Sprintf("%s.%s", filepath.Base(srcPath), s.now().Format(VersionTimeFormat))
	dstPath := filepath.Join(s.backup, versioned)

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open upload for archiving: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("failed to close archived source", "path", srcPath, "error", err)
		}
	}()

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to copy into backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to close backup file: %w", err)
	}
	return dstPath, nil
}

// ChecksumFile returns the hex SHA-256 digest of a stored file.
func (s *Store) ChecksumFile(name string) (string, error) {
	f, err := s.Open(name)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("fail to close file", "error", err.Error())
		}
	}()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
