package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const partialSuffix = ".partial"

// Local keeps artifacts as files under <root>/backups.
type Local struct {
	dir string
}

func NewLocal(root string) (*Local, error) {
	dir := filepath.Join(root, "backups")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Dir is where artifacts are written.
func (l *Local) Dir() string { return l.dir }

func (l *Local) LocalPath(name string) string {
	return filepath.Join(l.dir, name)
}

// Upload writes to a partial file that is renamed into place on Close.
func (l *Local) Upload(_ context.Context, name, _ string, hooks UploadHooks) (Upload, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	final := l.LocalPath(name)
	f, err := os.OpenFile(final+partialSuffix, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}
	return &localUpload{f: f, final: final, name: name, hooks: hooks}, nil
}

type localUpload struct {
	f       *os.File
	final   string
	name    string
	hooks   UploadHooks
	written int64

	once sync.Once
	err  error
}

func (u *localUpload) Write(b []byte) (int, error) {
	n, err := u.f.Write(b)
	u.written += int64(n)
	if n > 0 && u.hooks.OnProgress != nil {
		u.hooks.OnProgress(u.written)
	}
	return n, err
}

func (u *localUpload) Close() error {
	u.once.Do(func() {
		if err := u.f.Sync(); err != nil {
			u.err = u.abort(fmt.Errorf("sync backup file: %w", err))
			return
		}
		if err := u.f.Close(); err != nil {
			u.err = u.abort(fmt.Errorf("close backup file: %w", err))
			return
		}
		if err := os.Rename(u.f.Name(), u.final); err != nil {
			u.err = u.abort(fmt.Errorf("commit backup file: %w", err))
			return
		}
		if u.hooks.OnFinish != nil {
			u.hooks.OnFinish(Object{Name: u.name, Size: u.written, LocalPath: u.final})
		}
	})
	return u.err
}

func (u *localUpload) CloseWithError(err error) error {
	u.once.Do(func() {
		_ = u.f.Close()
		u.err = u.abort(err)
	})
	return nil
}

func (u *localUpload) abort(err error) error {
	_ = u.f.Close()
	_ = os.Remove(u.f.Name())
	return err
}

func (l *Local) Download(_ context.Context, name string) (io.ReadCloser, int64, error) {
	if err := validateName(name); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(l.LocalPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, 0, fmt.Errorf("open backup file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat backup file: %w", err)
	}
	return f, info.Size(), nil
}

func (l *Local) Delete(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.Remove(l.LocalPath(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete backup file: %w", err)
	}
	return nil
}

func (l *Local) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrSignedURLUnsupported
}
