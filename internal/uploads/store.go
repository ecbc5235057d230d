package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge    = errors.New("file too large")
	ErrBadFileType = errors.New("file type not allowed")
)

// Kind describes one upload target: its directory, the extensions it accepts
// and its size ceiling.
type Kind struct {
	Dir     string
	Exts    []string
	MaxSize int64
}

var (
	// Product images; mirrors the storefront's accepted formats.
	ProductImages = Kind{
		Dir:     "products",
		Exts:    []string{".jpeg", ".jpg", ".png", ".webp"},
		MaxSize: 5 << 20,
	}
	// Payment proofs may also be PDF receipts.
	PaymentProofs = Kind{
		Dir:     "proofs",
		Exts:    []string{".jpeg", ".jpg", ".png", ".pdf"},
		MaxSize: 10 << 20,
	}
)

// Store writes uploaded files under a base directory with random names, so a
// client-chosen filename never touches the filesystem.
type Store struct {
	Base string
}

func NewStore(base string) (*Store, error) {
	for _, k := range []Kind{ProductImages, PaymentProofs} {
		if err := os.MkdirAll(filepath.Join(base, k.Dir), 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{Base: base}, nil
}

// Save streams src to disk and returns the public path (/uploads/...).
func (s *Store) Save(kind Kind, filename string, src io.Reader, size int64) (string, error) {
	if size > kind.MaxSize {
		return "", ErrTooLarge
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowed(kind.Exts, ext) {
		return "", ErrBadFileType
	}

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.Base, kind.Dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	// LimitReader guards against a lying Content-Length
	n, err := io.Copy(dst, io.LimitReader(src, kind.MaxSize+1))
	if err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	if n > kind.MaxSize {
		_ = os.Remove(dst.Name())
		return "", ErrTooLarge
	}
	return fmt.Sprintf("/uploads/%s/%s", kind.Dir, name), nil
}

// Open resolves a stored filename for serving; the name is cleaned so path
// traversal cannot escape the kind's directory.
func (s *Store) Open(kind Kind, filename string) (*os.File, error) {
	clean := filepath.Base(filename)
	return os.Open(filepath.Join(s.Base, kind.Dir, clean))
}

// Remove deletes a previously stored file given its public path. Missing
// files are not an error.
func (s *Store) Remove(publicPath string) error {
	rel := strings.TrimPrefix(publicPath, "/uploads/")
	if rel == publicPath || strings.Contains(rel, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(s.Base, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func allowed(exts []string, ext string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
