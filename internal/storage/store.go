// Package storage persists uploaded attachments under a configured root
// directory and hands out stable relative references. Filename sanitization
// lives here and nowhere else.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"budgetflow/internal/apperrors"

	"github.com/google/uuid"
)

// Storage areas. Supporting documents and transfer proofs live in separate
// namespaces under the root.
const (
	AreaDocuments      = "documents"
	AreaTransferProofs = "transfer_proofs"
)

// Store writes and deletes attachment files under a single root directory.
// References returned by Save are slash-separated paths relative to the root.
type Store struct {
	root string
}

// New creates the root and area directories if needed.
func New(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, AreaDocuments), filepath.Join(root, AreaTransferProofs)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", apperrors.ErrStorage, dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the configured root directory, for static serving.
func (s *Store) Root() string {
	return s.root
}

// Save sanitizes the original filename, prefixes it with a random tag so a
// repeated name never overwrites an earlier upload (rename collision policy),
// and writes the content atomically: into a temp file first, then renamed
// into place. The returned reference is "<area>/<stored name>".
func (s *Store) Save(area, originalName string, r io.Reader) (string, error) {
	safe, err := sanitizeName(originalName)
	if err != nil {
		return "", err
	}

	name := uuid.NewString()[:8] + "_" + safe
	ref := path.Join(area, name)
	dst := filepath.Join(s.root, area, name)

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", apperrors.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write %s: %v", apperrors.ErrStorage, ref, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %v", apperrors.ErrStorage, ref, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("%w: store %s: %v", apperrors.ErrStorage, ref, err)
	}

	return ref, nil
}

// Remove deletes a stored file. Absence is not an error; a reference that
// would escape the root is rejected.
func (s *Store) Remove(ref string) error {
	rel, err := safeRel(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", apperrors.ErrStorage, ref, err)
	}
	return nil
}

// Exists reports whether the referenced file is present.
func (s *Store) Exists(ref string) bool {
	rel, err := safeRel(ref)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(filepath.Join(s.root, rel))
	return statErr == nil
}

// sanitizeName collapses an uploaded filename to a safe basename: path
// components are stripped, separators and control characters removed. Empty
// or dot-only results are rejected.
func sanitizeName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case r == '/', r == '\\', r == ':':
			return -1
		}
		return r
	}, base)
	base = strings.Trim(base, " ")

	if base == "" || base == "." || base == ".." || strings.Trim(base, ".") == "" {
		return "", fmt.Errorf("%w: unusable filename %q", apperrors.ErrValidation, name)
	}
	return base, nil
}

// safeRel validates a stored reference and converts it to a filesystem path
// relative to the root.
func safeRel(ref string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(ref))
	if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: invalid attachment reference %q", apperrors.ErrValidation, ref)
	}
	return rel, nil
}
