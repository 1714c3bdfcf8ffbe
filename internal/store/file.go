package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cchasing/openmc/internal/runtime/comm"
	"github.com/cchasing/openmc/pkg/crypto/adaptive"
)

// Mode selects how a container is opened.
type Mode int

const (
	// ModeRead opens the container for reading only.
	ModeRead Mode = iota
	// ModeAppend opens the container for modification; the updated tree
	// replaces the file on Close.
	ModeAppend
)

// Options configure Create and Open.
type Options struct {
	// Comm is the distributed runtime handle. When it supports
	// collective I/O, every rank of the group must call Create/Open with
	// the same arguments; only the coordinator touches the OS file. A
	// nil Comm behaves like a serial run.
	Comm comm.Comm

	// Cipher, when set, encrypts the container body on write and is
	// required to read an encrypted container.
	Cipher adaptive.Cipher
}

// File is an open container. At most one of the ranks of a collective
// group holds the tree; the rest hold participation handles that only
// service the collective operations.
type File struct {
	path       string
	mode       Mode
	comm       comm.Comm
	cipher     adaptive.Cipher
	collective bool
	root       *node
	closed     bool
}

// Create creates a new empty container at path, opened in ModeAppend.
// Nothing is written to disk until Close.
func Create(path string, opts Options) (*File, error) {
	f := &File{
		path:       path,
		mode:       ModeAppend,
		comm:       opts.Comm,
		cipher:     opts.Cipher,
		collective: opts.Comm != nil && opts.Comm.SupportsCollectiveIO(),
	}
	if !f.collective || f.comm.IsCoordinator() {
		f.root = newNode()
	}
	if f.collective {
		if err := f.comm.Barrier(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Open opens an existing container. In a collective group only the
// coordinator reads the file; a coordinator-side failure is surfaced on
// every rank.
func Open(path string, mode Mode, opts Options) (*File, error) {
	f := &File{
		path:       path,
		mode:       mode,
		comm:       opts.Comm,
		cipher:     opts.Cipher,
		collective: opts.Comm != nil && opts.Comm.SupportsCollectiveIO(),
	}

	var openErr error
	if !f.collective || f.comm.IsCoordinator() {
		raw, err := os.ReadFile(path)
		if err != nil {
			openErr = fmt.Errorf("store: open %s: %w", path, err)
		} else {
			f.root, openErr = decodeContainer(raw, f.cipher)
		}
	}

	if f.collective {
		ok := 1
		if openErr != nil {
			ok = 0
		}
		flags, err := f.comm.AllGatherInt(ok)
		if err != nil {
			return nil, err
		}
		for _, flag := range flags {
			if flag == 0 {
				if openErr != nil {
					return nil, openErr
				}
				return nil, fmt.Errorf("store: coordinator failed to open %s", path)
			}
		}
	} else if openErr != nil {
		return nil, openErr
	}

	return f, nil
}

// Root returns the root group.
func (f *File) Root() *Group {
	return &Group{f: f, n: f.root}
}

// Path returns the path the container was opened with.
func (f *File) Path() string {
	return f.path
}

// Close flushes the tree to disk (append mode, coordinator side) and
// releases the handle. Every rank of a collective group must call it;
// a coordinator-side write failure is surfaced on every rank.
func (f *File) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true

	var werr error
	if f.root != nil && f.mode != ModeRead {
		werr = f.writeOut()
	}

	if f.collective {
		ok := 1
		if werr != nil {
			ok = 0
		}
		flags, err := f.comm.AllGatherInt(ok)
		if err != nil {
			return err
		}
		for _, flag := range flags {
			if flag == 0 {
				if werr != nil {
					return werr
				}
				return fmt.Errorf("store: coordinator failed to write %s", f.path)
			}
		}
	}
	return werr
}

// writeOut serializes the tree to a temporary sibling and renames it
// into place, so a crash mid-write never corrupts an existing file.
func (f *File) writeOut() error {
	data, err := encodeContainer(f.root, f.cipher)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}
