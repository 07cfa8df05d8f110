//go:build linux

package channel

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-zoned/internal/uapi"
)

func imageFile(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestOpenRejectsRegularFile(t *testing.T) {
	_, err := Open(imageFile(t, 4096), Options{ReadOnly: true})
	assert.ErrorIs(t, err, ErrNotBlockDevice)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"), Options{ReadOnly: true})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestImageChannel(t *testing.T) {
	path := imageFile(t, 8192)
	dev, err := Open(path, Options{ReadOnly: true, AllowRegular: true})
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, path, dev.Path())

	size, err := dev.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(8192), size)

	lbs, err := dev.LogicalBlockSize()
	require.NoError(t, err)
	assert.Equal(t, uint32(512), lbs)

	buf := make([]byte, 16)
	n, err := dev.ReadAt(buf, 256)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, byte(0), buf[0])
	assert.Equal(t, byte(15), buf[15])

	n, err = dev.ReadAt(buf, 8192-8)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 8, n)
}

func TestSubmitOnImage(t *testing.T) {
	dev, err := Open(imageFile(t, 4096), Options{ReadOnly: true, AllowRegular: true})
	require.NoError(t, err)
	defer dev.Close()

	cmd := &uapi.Command{Op: uapi.BLKREPORTZONE, Dir: uapi.DirReadWrite, Buf: make([]byte, 512), Name: "BLKREPORTZONE"}
	err = dev.Submit(context.Background(), cmd)
	require.Error(t, err)

	var ce *CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "BLKREPORTZONE", ce.Cmd)
	assert.NotZero(t, ce.Errno)
	assert.True(t, errors.Is(err, ce.Errno))

	err = dev.Submit(context.Background(), &uapi.Command{Op: uapi.BLKREPORT, Buf: []byte{}, Name: "BLKREPORT"})
	assert.ErrorIs(t, err, ErrEmptyBuffer)
}

func TestSubmitHonoursContext(t *testing.T) {
	dev, err := Open(imageFile(t, 4096), Options{ReadOnly: true, AllowRegular: true})
	require.NoError(t, err)
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = dev.Submit(ctx, &uapi.Command{Op: uapi.BLKOPENZONE_LEGACY, Name: "BLKOPENZONE"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosed(t *testing.T) {
	dev, err := Open(imageFile(t, 4096), Options{ReadOnly: true, AllowRegular: true})
	require.NoError(t, err)
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())

	_, err = dev.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = dev.Size()
	assert.ErrorIs(t, err, ErrClosed)
	err = dev.Submit(context.Background(), &uapi.Command{Op: uapi.BLKOPENZONE_LEGACY})
	assert.ErrorIs(t, err, ErrClosed)
}
