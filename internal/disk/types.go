package disk

import (
	"context"
	"io"

	"github.com/bytedance/sonic"
)

// FileType classifies a directory entry. Values match the wire protocol.
type FileType int

const (
	FileTypeUnknown      FileType = 0
	FileTypeFile         FileType = 1
	FileTypeDirectory    FileType = 2
	FileTypeSymbolicLink FileType = 64
)

// Stat is the metadata returned for a resource
type Stat struct {
	Type  FileType `json:"type"`
	Ctime int64    `json:"ctime"` // milliseconds since epoch
	Mtime int64    `json:"mtime"` // milliseconds since epoch
	Size  int64    `json:"size"`
}

// DirEntry is one readdir result
type DirEntry struct {
	Name string
	Type FileType
}

// MarshalJSON encodes the entry as the [name, type] tuple clients expect
func (e DirEntry) MarshalJSON() ([]byte, error) {
	return sonic.Marshal([]interface{}{e.Name, e.Type})
}

// OpenOptions controls Open
type OpenOptions struct {
	Create bool `json:"create"`
}

// DeleteOptions controls Delete
type DeleteOptions struct {
	Recursive bool `json:"recursive"`
	UseTrash  bool `json:"useTrash"`
}

// OverwriteOptions controls Rename and Copy
type OverwriteOptions struct {
	Overwrite bool `json:"overwrite"`
}

// WatchOptions controls one watch subscription
type WatchOptions struct {
	Recursive bool     `json:"recursive"`
	Excludes  []string `json:"excludes"`
}

// ChangeType classifies a change event. Values match the wire protocol.
type ChangeType int

const (
	ChangeUpdated ChangeType = 0
	ChangeAdded   ChangeType = 1
	ChangeDeleted ChangeType = 2
)

// Change is a single filesystem change on a local path
type Change struct {
	Type ChangeType
	Path string
}

// Provider is the disk access primitive the channels operate on. All paths
// are local filesystem paths.
type Provider interface {
	Stat(ctx context.Context, path string) (Stat, error)
	Open(ctx context.Context, path string, opts OpenOptions) (int, error)
	Close(ctx context.Context, fd int) error
	Read(ctx context.Context, fd int, pos int64, buf []byte) (int, error)
	Write(ctx context.Context, fd int, pos int64, data []byte) (int, error)
	Delete(ctx context.Context, path string, opts DeleteOptions) error
	Mkdir(ctx context.Context, path string) error
	Readdir(ctx context.Context, path string) ([]DirEntry, error)
	Rename(ctx context.Context, from, to string, opts OverwriteOptions) error
	Copy(ctx context.Context, from, to string, opts OverwriteOptions) error
}

// Watcher is a watch-capable resource. It delivers change batches and
// errors for as long as at least one subscription is open.
type Watcher interface {
	// Watch starts a subscription. Closing the returned handle ends it.
	Watch(path string, opts WatchOptions) (io.Closer, error)
	Changes() <-chan []Change
	Errors() <-chan error
	Close() error
}

// WatcherFactory creates a new, exclusively owned Watcher
type WatcherFactory func() (Watcher, error)
