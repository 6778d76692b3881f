package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// Local implements Provider on the host filesystem. Open files are tracked
// in a descriptor table so clients only ever hold integers.
type Local struct {
	mu     sync.Mutex
	files  map[int]*os.File
	nextFD int
}

// NewLocal creates a host filesystem provider
func NewLocal() *Local {
	return &Local{
		files:  make(map[int]*os.File),
		nextFD: 1,
	}
}

// Stat returns metadata for path. Symbolic links report the type of their
// target combined with FileTypeSymbolicLink.
func (l *Local) Stat(ctx context.Context, path string) (Stat, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Stat{}, Wrap(path, err)
	}

	var ft FileType
	if info.Mode()&fs.ModeSymlink != 0 {
		ft = FileTypeSymbolicLink
		target, err := os.Stat(path)
		if err == nil {
			info = target
		}
	}
	ft |= fileType(info.Mode())

	mtime := info.ModTime().UnixMilli()
	return Stat{
		Type:  ft,
		Ctime: mtime,
		Mtime: mtime,
		Size:  info.Size(),
	}, nil
}

// Open opens path and returns a descriptor. Create opens for writing and
// truncates, otherwise the file is opened read-only.
func (l *Local) Open(ctx context.Context, path string, opts OpenOptions) (int, error) {
	flags := os.O_RDONLY
	if opts.Create {
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return 0, Wrap(path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fd := l.nextFD
	l.nextFD++
	l.files[fd] = f
	return fd, nil
}

// Close releases a descriptor
func (l *Local) Close(ctx context.Context, fd int) error {
	l.mu.Lock()
	f, ok := l.files[fd]
	delete(l.files, fd)
	l.mu.Unlock()

	if !ok {
		return badDescriptor(fd)
	}
	return Wrap(f.Name(), f.Close())
}

// Read reads into buf at pos and returns the number of bytes read. Reaching
// end of file is not an error.
func (l *Local) Read(ctx context.Context, fd int, pos int64, buf []byte) (int, error) {
	f, err := l.lookup(fd)
	if err != nil {
		return 0, err
	}

	n, err := f.ReadAt(buf, pos)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, Wrap(f.Name(), err)
	}
	return n, nil
}

// Write writes data at pos
func (l *Local) Write(ctx context.Context, fd int, pos int64, data []byte) (int, error) {
	f, err := l.lookup(fd)
	if err != nil {
		return 0, err
	}

	n, err := f.WriteAt(data, pos)
	if err != nil {
		return n, Wrap(f.Name(), err)
	}
	return n, nil
}

// Delete removes path. Trash is not available on the server, so UseTrash
// deletes permanently.
func (l *Local) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	if _, err := os.Lstat(path); err != nil {
		return Wrap(path, err)
	}
	if opts.Recursive {
		return Wrap(path, os.RemoveAll(path))
	}
	return Wrap(path, os.Remove(path))
}

// Mkdir creates a single directory
func (l *Local) Mkdir(ctx context.Context, path string) error {
	return Wrap(path, os.Mkdir(path, 0o755))
}

// Readdir lists the entries of a directory
func (l *Local) Readdir(ctx context.Context, path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, Wrap(path, err)
	}

	result := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		ft := fileType(entry.Type())
		if entry.Type()&fs.ModeSymlink != 0 {
			ft = FileTypeSymbolicLink
			if target, err := os.Stat(filepath.Join(path, entry.Name())); err == nil {
				ft |= fileType(target.Mode())
			}
		}
		result = append(result, DirEntry{Name: entry.Name(), Type: ft})
	}
	return result, nil
}

// Rename moves from to to
func (l *Local) Rename(ctx context.Context, from, to string, opts OverwriteOptions) error {
	if err := prepareTarget(from, to, opts); err != nil {
		return err
	}
	return Wrap(from, os.Rename(from, to))
}

// Copy copies a file or directory tree from to to
func (l *Local) Copy(ctx context.Context, from, to string, opts OverwriteOptions) error {
	if err := prepareTarget(from, to, opts); err != nil {
		return err
	}

	info, err := os.Stat(from)
	if err != nil {
		return Wrap(from, err)
	}
	if info.IsDir() {
		return copyTree(from, to)
	}
	return copyFile(from, to, info.Mode())
}

// OpenDescriptors returns the number of open descriptors
func (l *Local) OpenDescriptors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.files)
}

func (l *Local) lookup(fd int) (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.files[fd]
	if !ok {
		return nil, badDescriptor(fd)
	}
	return f, nil
}

func badDescriptor(fd int) error {
	return &Error{Code: CodeUnavailable, Err: fmt.Errorf("descriptor %d: %w", fd, fs.ErrClosed)}
}

func fileType(mode fs.FileMode) FileType {
	switch {
	case mode.IsRegular():
		return FileTypeFile
	case mode.IsDir():
		return FileTypeDirectory
	case mode&fs.ModeSymlink != 0:
		return FileTypeSymbolicLink
	}
	return FileTypeUnknown
}

// prepareTarget enforces overwrite semantics before a rename or copy
func prepareTarget(from, to string, opts OverwriteOptions) error {
	if _, err := os.Lstat(from); err != nil {
		return Wrap(from, err)
	}
	if filepath.Clean(from) == filepath.Clean(to) {
		return nil
	}
	if _, err := os.Lstat(to); err == nil {
		if !opts.Overwrite {
			return &Error{Code: CodeFileExists, Path: to}
		}
		if err := os.RemoveAll(to); err != nil {
			return Wrap(to, err)
		}
	}
	return nil
}

func copyTree(from, to string) error {
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, from, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, p)
		if err != nil {
			return err
		}
		dst := filepath.Join(to, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(dst, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			return os.Symlink(target, dst)
		default:
			info, err := d.Info()
			if err != nil {
				return err
			}
			// Entries may be visited concurrently with their parent directory
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			return copyFile(p, dst, info.Mode())
		}
	})
	return Wrap(from, err)
}

func copyFile(from, to string, mode fs.FileMode) error {
	src, err := os.Open(from)
	if err != nil {
		return Wrap(from, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return Wrap(to, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return Wrap(to, err)
	}
	return Wrap(to, dst.Close())
}
