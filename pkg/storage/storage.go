// Package storage is the persistent byte-stream volume (an SD card on the
// device, a directory on a host). Every operation may fail; callers treat
// failure as "storage unavailable", never as fatal.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnavailable is returned when the volume is not mounted.
var ErrUnavailable = errors.New("storage unavailable")

// Volume is a flat file store.
type Volume interface {
	Available() bool
	Exists(name string) bool
	OpenRead(name string) (io.ReadCloser, error)
	OpenAppend(name string) (io.WriteCloser, error)
	OpenWrite(name string) (io.WriteCloser, error)
	Remove(name string) error
	Rename(from, to string) error
}

// Dir is a Volume rooted at a host directory.
type Dir struct {
	root string
}

var _ Volume = (*Dir)(nil)

// NewDir creates a volume rooted at root. The directory is not created;
// a missing root reads as an unmounted card.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the volume root.
func (d *Dir) Root() string {
	return d.root
}

// Available reports whether the root directory exists.
func (d *Dir) Available() bool {
	st, err := os.Stat(d.root)
	return err == nil && st.IsDir()
}

// Exists reports whether name exists on the volume.
func (d *Dir) Exists(name string) bool {
	p, err := d.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// OpenRead opens name for reading.
func (d *Dir) OpenRead(name string) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// OpenAppend opens name for appending, creating it if needed.
func (d *Dir) OpenAppend(name string) (io.WriteCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// OpenWrite opens name for writing, truncating it.
func (d *Dir) OpenWrite(name string) (io.WriteCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
}

// Remove deletes name.
func (d *Dir) Remove(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// Rename replaces to with from.
func (d *Dir) Rename(from, to string) error {
	src, err := d.path(from)
	if err != nil {
		return err
	}
	dst, err := d.path(to)
	if err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func (d *Dir) path(name string) (string, error) {
	if !d.Available() {
		return "", ErrUnavailable
	}
	clean := filepath.Clean("/" + strings.TrimLeft(name, "/"))
	if clean == "/" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(d.root, clean), nil
}

// Unmounted is a Volume with no card inserted.
type Unmounted struct{}

var _ Volume = Unmounted{}

func (Unmounted) Available() bool                           { return false }
func (Unmounted) Exists(string) bool                        { return false }
func (Unmounted) OpenRead(string) (io.ReadCloser, error)    { return nil, ErrUnavailable }
func (Unmounted) OpenAppend(string) (io.WriteCloser, error) { return nil, ErrUnavailable }
func (Unmounted) OpenWrite(string) (io.WriteCloser, error)  { return nil, ErrUnavailable }
func (Unmounted) Remove(string) error                       { return ErrUnavailable }
func (Unmounted) Rename(string, string) error               { return ErrUnavailable }

// ReadFile reads the whole of name.
func ReadFile(v Volume, name string) ([]byte, error) {
	f, err := v.OpenRead(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// WriteFile replaces name with data.
func WriteFile(v Volume, name string, data []byte) error {
	f, err := v.OpenWrite(name)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// AppendFile appends data to name.
func AppendFile(v Volume, name string, data []byte) error {
	f, err := v.OpenAppend(name)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
