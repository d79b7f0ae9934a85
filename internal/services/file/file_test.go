package file_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"filevault/internal/domain/models"
	fileservice "filevault/internal/services/file"
	"filevault/internal/storage/memory"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileService(t *testing.T) (*fileservice.File, *memory.Storage) {
	t.Helper()

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return fileservice.New(logger, store), store
}

func writeBlob(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), gofakeit.UUID()+".txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func newMeta(t *testing.T, userID int64) *models.File {
	t.Helper()

	name := gofakeit.Word() + ".txt"
	return &models.File{
		Name:      name,
		Extension: ".txt",
		MimeType:  "text/plain",
		Size:      4,
		Path:      writeBlob(t, "data"),
		UserID:    userID,
	}
}

func TestUploadAndGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService(t)

	meta := newMeta(t, 1)

	saved, err := svc.Upload(ctx, meta)
	require.NoError(t, err)
	require.NotZero(t, saved.ID)
	assert.Equal(t, meta.Name, saved.Name)
	assert.False(t, saved.UploadedAt.IsZero())

	got, err := svc.Get(ctx, saved.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, meta.Path, got.Path)
}

func TestGet_OtherUsersFileIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService(t)

	saved, err := svc.Upload(ctx, newMeta(t, 1))
	require.NoError(t, err)

	_, err = svc.Get(ctx, saved.ID, 2)
	require.ErrorIs(t, err, fileservice.ErrFileNotFound)
}

func TestList_Pagination(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService(t)

	const total = 25
	for i := 0; i < total; i++ {
		_, err := svc.Upload(ctx, newMeta(t, 1))
		require.NoError(t, err)
	}
	// another user's files must not leak into the listing
	_, err := svc.Upload(ctx, newMeta(t, 2))
	require.NoError(t, err)

	page1, err := svc.List(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(total), page1.Total)
	assert.Len(t, page1.Items, 10)

	page3, err := svc.List(ctx, 1, 3, 10)
	require.NoError(t, err)
	assert.Len(t, page3.Items, 5)

	// defaults: page 1, size 10
	defaulted, err := svc.List(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Len(t, defaulted.Items, 10)
	assert.Equal(t, page1.Items[0].ID, defaulted.Items[0].ID)
}

func TestList_NewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService(t)

	first, err := svc.Upload(ctx, newMeta(t, 1))
	require.NoError(t, err)
	second, err := svc.Upload(ctx, newMeta(t, 1))
	require.NoError(t, err)

	list, err := svc.List(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, second.ID, list.Items[0].ID)
	assert.Equal(t, first.ID, list.Items[1].ID)
}

func TestDelete_RemovesRowAndBlob(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService(t)

	meta := newMeta(t, 1)
	saved, err := svc.Upload(ctx, meta)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, saved.ID, 1))

	_, err = svc.Get(ctx, saved.ID, 1)
	require.ErrorIs(t, err, fileservice.ErrFileNotFound)

	_, err = os.Stat(meta.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestDelete_BlobAlreadyGone(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService(t)

	meta := newMeta(t, 1)
	saved, err := svc.Upload(ctx, meta)
	require.NoError(t, err)

	require.NoError(t, os.Remove(meta.Path))

	// a missing blob is logged, not fatal; the row is the source of truth
	require.NoError(t, svc.Delete(ctx, saved.ID, 1))
}

func TestDelete_OtherUsersFile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService(t)

	meta := newMeta(t, 1)
	saved, err := svc.Upload(ctx, meta)
	require.NoError(t, err)

	err = svc.Delete(ctx, saved.ID, 2)
	require.ErrorIs(t, err, fileservice.ErrFileNotFound)

	// still there for its owner
	_, err = svc.Get(ctx, saved.ID, 1)
	require.NoError(t, err)
	_, statErr := os.Stat(meta.Path)
	require.NoError(t, statErr)
}

func TestUpdate_ReplacesBlob(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService(t)

	old := newMeta(t, 1)
	saved, err := svc.Upload(ctx, old)
	require.NoError(t, err)

	updated := newMeta(t, 1)
	result, err := svc.Update(ctx, saved.ID, 1, updated)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, result.ID)
	assert.Equal(t, updated.Name, result.Name)
	assert.Equal(t, updated.Path, result.Path)

	// the replaced blob is removed from disk
	_, err = os.Stat(old.Path)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(updated.Path)
	require.NoError(t, err)
}

func TestUpdate_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFileService(t)

	_, err := svc.Update(ctx, 999, 1, newMeta(t, 1))
	require.ErrorIs(t, err, fileservice.ErrFileNotFound)
}
