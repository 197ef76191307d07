// Package files stores uploaded product images on the local filesystem.
package files

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/tshirt-store/internal/domain/product"
)

const DefaultURLPrefix = "/uploads/"

var _ product.ImageStore = (*Store)(nil)

// Store writes images into Dir as <yyyymmddhhmmss>_<sanitized name> and
// references them as URLPrefix + file name.
type Store struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

func New(dir, urlPrefix string) (*Store, error) {
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload dir %q", dir)
	}
	return &Store{dir: dir, urlPrefix: urlPrefix, now: time.Now}, nil
}

// Dir is the directory images are written to.
func (s *Store) Dir() string { return s.dir }

// Save writes r to a new file and returns its public reference. A file
// name collision within the same second gets a numeric suffix.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	base := s.now().UTC().Format("20060102150405") + "_" + Sanitize(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name := base
	for i := 1; ; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			name = stem + "_" + strconv.Itoa(i) + ext
			continue
		}
		if err != nil {
			return "", errors.Wrap(err, "create image file")
		}
		if _, err := io.Copy(f, r); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", errors.Wrap(err, "write image file")
		}
		if err := f.Close(); err != nil {
			return "", errors.Wrap(err, "close image file")
		}
		return s.urlPrefix + name, nil
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sanitize reduces a client supplied file name to a safe base name.
func Sanitize(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "file"
	}
	return name
}
