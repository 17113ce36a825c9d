package downloader

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMP4 returns an ISO base media header followed by padding.
func fakeMP4(size int) []byte {
	head := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00}
	return append(head, bytes.Repeat([]byte{0x01}, size-len(head))...)
}

func TestSaveVideo(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "work", "source.mp4")
	payload := fakeMP4(4096)

	var calls []int64
	n, err := SaveVideo(bytes.NewReader(payload), dest, int64(len(payload)), func(written, total int64) {
		calls = append(calls, written)
		assert.Equal(t, int64(len(payload)), total)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NotEmpty(t, calls)
	assert.Equal(t, int64(len(payload)), calls[len(calls)-1])
}

func TestSaveVideo_NotVideo(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "source.mp4")

	_, err := SaveVideo(strings.NewReader(strings.Repeat("hello world ", 100)), dest, 0, nil)
	require.ErrorIs(t, err, ErrNotVideo)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "rejected file is removed")
}

func TestSaveVideo_Empty(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "source.mp4")

	_, err := SaveVideo(bytes.NewReader(nil), dest, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestSaveVideo_Short(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "source.mp4")
	payload := fakeMP4(1024)

	_, err := SaveVideo(bytes.NewReader(payload), dest, 2048, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short download")
}

func TestVerifyVideo_TinyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.mp4")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01}, 0644))

	assert.ErrorIs(t, VerifyVideo(path), ErrNotVideo)
}
