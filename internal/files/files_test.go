package files

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/betbot/core/config"
	"github.com/m3rciful/betbot/core/telegram/state"
)

type fakeDownloader struct {
	content string
	err     error
}

func (f *fakeDownloader) File(file *tele.File) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func newTestService(t *testing.T, maxMB int) *Service {
	t.Helper()
	return NewService(coreconfig.FilesConfig{
		TempDir:    t.TempDir(),
		MaxSizeMB:  maxMB,
		Extensions: []string{".jpg", ".png"},
	})
}

func TestSaveWritesAndCleanupRemoves(t *testing.T) {
	svc := newTestService(t, 10)
	dl := &fakeDownloader{content: "receipt-bytes"}

	path, cleanup, err := svc.Save(context.Background(), dl, tele.File{FileID: "f1"}, "receipt.jpg")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "receipt-bytes", string(data))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	// Cleanup is idempotent.
	cleanup()
}

func TestSavePhotoWithoutNameDefaultsToJpeg(t *testing.T) {
	svc := newTestService(t, 10)
	dl := &fakeDownloader{content: "x"}

	path, cleanup, err := svc.Save(context.Background(), dl, tele.File{FileID: "f2"}, "")
	require.NoError(t, err)
	defer cleanup()
	assert.True(t, strings.HasSuffix(path, ".jpg"))
}

func TestSaveRejectsExtension(t *testing.T) {
	svc := newTestService(t, 10)
	dl := &fakeDownloader{content: "x"}

	_, _, err := svc.Save(context.Background(), dl, tele.File{FileID: "f3"}, "malware.exe")
	assert.ErrorIs(t, err, ErrBadExtension)
}

func TestSaveRejectsDeclaredOversize(t *testing.T) {
	svc := newTestService(t, 1)
	dl := &fakeDownloader{content: "x"}

	_, _, err := svc.Save(context.Background(), dl, tele.File{FileID: "f4", FileSize: 2 << 20}, "big.jpg")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestSaveRejectsActualOversizeAndRemovesFile(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(coreconfig.FilesConfig{TempDir: dir, Extensions: []string{".jpg"}})
	svc.maxBytes.Store(4)
	dl := &fakeDownloader{content: "more-than-four-bytes"}

	_, _, err := svc.Save(context.Background(), dl, tele.File{FileID: "f5"}, "r.jpg")
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, rerr := os.ReadDir(dir)
	require.NoError(t, rerr)
	assert.Empty(t, entries, "oversize temp file must be removed")
}

func TestCapBytesOnlyTightens(t *testing.T) {
	svc := newTestService(t, 10)

	svc.CapBytes(20 << 20)
	assert.EqualValues(t, 10<<20, svc.maxBytes.Load(), "a looser server limit must not widen the local one")

	svc.CapBytes(1 << 20)
	assert.EqualValues(t, 1<<20, svc.maxBytes.Load())

	svc.CapBytes(0)
	assert.EqualValues(t, 1<<20, svc.maxBytes.Load())
}

func TestStagedFileOutlivesTheUpdateUntilDiscard(t *testing.T) {
	svc := newTestService(t, 10)
	dl := &fakeDownloader{content: "receipt"}
	id := state.Identity{ChatID: 20, UserID: 20}

	path, _, err := svc.Save(context.Background(), dl, tele.File{FileID: "s1"}, "r.jpg")
	require.NoError(t, err)
	svc.Stage(id, path)

	// Staged evidence must still exist for a later confirm step.
	_, err = os.Stat(path)
	require.NoError(t, err)

	svc.Discard(id)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Discard with nothing staged is a no-op.
	svc.Discard(id)
}

func TestStageReplacesEarlierFile(t *testing.T) {
	svc := newTestService(t, 10)
	dl := &fakeDownloader{content: "receipt"}
	id := state.Identity{ChatID: 21, UserID: 21}

	first, _, err := svc.Save(context.Background(), dl, tele.File{FileID: "s2"}, "a.jpg")
	require.NoError(t, err)
	svc.Stage(id, first)

	second, _, err := svc.Save(context.Background(), dl, tele.File{FileID: "s3"}, "b.jpg")
	require.NoError(t, err)
	svc.Stage(id, second)

	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err), "re-uploading replaces the earlier receipt")
	_, err = os.Stat(second)
	assert.NoError(t, err)

	svc.Discard(id)
}
