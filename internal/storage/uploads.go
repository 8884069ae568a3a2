package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrEmptyName is returned when an upload arrives without a file name.
var ErrEmptyName = errors.New("empty file name")

// fallbackName replaces names with no usable characters left after sanitizing.
const fallbackName = "document.pdf"

const maxNameRunes = 128

// Uploads is the working directory uploaded documents are staged in.
type Uploads struct {
	dir string
}

// NewUploads ensures dir exists.
func NewUploads(dir string) (*Uploads, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Dir returns the staging directory.
func (u *Uploads) Dir() string { return u.dir }

// TempFile is a staged document. Remove must be called on every exit path.
type TempFile struct {
	Path string
	Name string
	Size int64
	keep bool // caller-owned file, never deleted
	once sync.Once
	err  error
}

// Remove deletes the file. It is safe to call more than once.
func (f *TempFile) Remove() error {
	f.once.Do(func() {
		if f.keep {
			return
		}
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = err
			log.Warn().Err(err).Str("file", f.Path).Msg("failed to remove staged upload")
			return
		}
		log.Debug().Str("file", f.Path).Msg("removed staged upload")
	})
	return f.err
}

// Save copies r into the staging directory under a collision-free name derived
// from name. On error nothing is left behind.
func (u *Uploads) Save(name string, r io.Reader) (*TempFile, error) {
	out, tf, err := u.create(name)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tf.Path)
		return nil, fmt.Errorf("write failed: %w", err)
	}
	tf.Size = n
	return tf, nil
}

// create opens a new exclusive file in the staging directory.
func (u *Uploads) create(name string) (*os.File, *TempFile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil, ErrEmptyName
	}
	clean := SanitizeName(name)
	if clean == "" {
		clean = fallbackName
	}
	p := filepath.Join(u.dir, uuid.NewString()+"_"+clean)
	out, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot save upload: %w", err)
	}
	return out, &TempFile{Path: p, Name: clean}, nil
}

// SanitizeName strips directory components and characters that are awkward
// in file names. Letters and digits of any script are kept. It returns "" for
// names with nothing usable left.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := []rune(strings.TrimLeft(b.String(), "."))
	if len(out) > maxNameRunes {
		out = out[len(out)-maxNameRunes:]
	}
	return string(out)
}

// CleanupStale removes staged files older than maxAge, left over from a crash.
func (u *Uploads) CleanupStale(maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	_ = filepath.Walk(u.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	if removed > 0 {
		log.Info().Int("removed", removed).Str("dir", u.dir).Msg("cleaned up stale uploads")
	}
	return removed
}
