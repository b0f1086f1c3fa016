// Package artifact publishes session outputs to a file store: a local
// directory or an S3-compatible bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/cwbudde/algo-restyle/session"
)

// FileStore is the write side of an artifact destination. Paths are
// forward-slash separated and relative to the store root.
type FileStore interface {
	Write(ctx context.Context, path string) (io.WriteCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Local stores files below a root directory.
type Local struct {
	root string
}

func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

func (l *Local) resolve(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(p))
}

func (l *Local) Write(_ context.Context, p string) (io.WriteCloser, error) {
	full := l.resolve(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (l *Local) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(l.resolve(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Publish copies the report, the base melody and the best attempt's melody
// and generated clip to store under "<session id>/". It returns the store
// paths written. A session without a best attempt publishes its report and
// base melody only.
func Publish(ctx context.Context, store FileStore, res *session.Result) ([]string, error) {
	if res == nil || res.ID == "" {
		return nil, errors.New("artifact: result has no session id")
	}
	files := []string{filepath.Join(res.OutputDir, "report.yaml"), res.MelodyPath}
	if res.Best != nil {
		files = append(files, res.Best.MelodyPath, res.Best.GeneratedPath)
	}
	var written []string
	for _, f := range files {
		if f == "" {
			continue
		}
		dst := path.Join(res.ID, filepath.Base(f))
		if err := copyFile(ctx, store, f, dst); err != nil {
			return written, fmt.Errorf("artifact: publish %s: %w", filepath.Base(f), err)
		}
		written = append(written, dst)
	}
	return written, nil
}

func copyFile(ctx context.Context, store FileStore, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	w, err := store.Write(ctx, dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
