package disk

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalOpenReadWriteClose(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	path := filepath.Join(t.TempDir(), "notes.txt")

	fd, err := l.Open(ctx, path, OpenOptions{Create: true})
	require.NoError(t, err)

	n, err := l.Write(ctx, fd, 0, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	require.NoError(t, l.Close(ctx, fd))

	fd, err = l.Open(ctx, path, OpenOptions{})
	require.NoError(t, err)
	defer l.Close(ctx, fd)

	buf := make([]byte, 32)
	n, err = l.Read(ctx, fd, 6, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
	assert.Equal(t, 1, l.OpenDescriptors())
}

func TestLocalBadDescriptor(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	_, err := l.Read(ctx, 42, 0, make([]byte, 1))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, l.Close(ctx, 42), ErrUnavailable)
}

func TestLocalStat(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0o644))
	require.NoError(t, os.Symlink(file, filepath.Join(dir, "link")))

	st, err := l.Stat(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, FileTypeFile, st.Type)
	assert.Equal(t, int64(3), st.Size)
	assert.NotZero(t, st.Mtime)

	st, err = l.Stat(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, FileTypeDirectory, st.Type)

	st, err = l.Stat(ctx, filepath.Join(dir, "link"))
	require.NoError(t, err)
	assert.Equal(t, FileTypeSymbolicLink|FileTypeFile, st.Type)

	_, err = l.Stat(ctx, filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalMkdirReaddirDelete(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	root := t.TempDir()

	require.NoError(t, l.Mkdir(ctx, filepath.Join(root, "src")))
	assert.ErrorIs(t, l.Mkdir(ctx, filepath.Join(root, "src")), ErrFileExists)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), nil, 0o644))

	entries, err := l.Readdir(ctx, root)
	require.NoError(t, err)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	assert.Equal(t, []DirEntry{
		{Name: "go.mod", Type: FileTypeFile},
		{Name: "src", Type: FileTypeDirectory},
	}, entries)

	err = l.Delete(ctx, filepath.Join(root, "src"), DeleteOptions{})
	assert.Error(t, err, "non-recursive delete of a non-empty directory")

	require.NoError(t, l.Delete(ctx, filepath.Join(root, "src"), DeleteOptions{Recursive: true}))
	assert.NoDirExists(t, filepath.Join(root, "src"))

	err = l.Delete(ctx, filepath.Join(root, "src"), DeleteOptions{Recursive: true})
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalRenameOverwrite(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	root := t.TempDir()
	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	require.NoError(t, os.WriteFile(a, []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("B"), 0o644))

	err := l.Rename(ctx, a, b, OverwriteOptions{})
	assert.ErrorIs(t, err, ErrFileExists)

	require.NoError(t, l.Rename(ctx, a, b, OverwriteOptions{Overwrite: true}))
	data, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))
	assert.NoFileExists(t, a)
}

func TestLocalCopyTree(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "pkg", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "pkg", "deep", "leaf.txt"), []byte("leaf"), 0o644))

	dst := filepath.Join(root, "dst")
	require.NoError(t, l.Copy(ctx, src, dst, OverwriteOptions{}))

	data, err := os.ReadFile(filepath.Join(dst, "pkg", "deep", "leaf.txt"))
	require.NoError(t, err)
	assert.Equal(t, "leaf", string(data))
	assert.FileExists(t, filepath.Join(dst, "top.txt"))

	assert.ErrorIs(t, l.Copy(ctx, src, dst, OverwriteOptions{}), ErrFileExists)
}

func TestDirEntryMarshalsAsTuple(t *testing.T) {
	data, err := sonic.Marshal([]DirEntry{{Name: "main.go", Type: FileTypeFile}})
	require.NoError(t, err)
	assert.JSONEq(t, `[["main.go",1]]`, string(data))
}

func TestWrapClassifies(t *testing.T) {
	_, err := os.Open(filepath.Join(t.TempDir(), "nope"))
	wrapped := Wrap("nope", err)

	var de *Error
	require.ErrorAs(t, wrapped, &de)
	assert.Equal(t, CodeFileNotFound, de.Code)
	assert.Equal(t, "nope", de.Path)
	assert.Nil(t, Wrap("x", nil))
	assert.Same(t, wrapped, Wrap("other", wrapped))
}
