package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"filevault/internal/domain/models"
	"filevault/internal/lib/sl"
	"filevault/internal/storage"
)

// File manages the metadata and on-disk blobs of uploaded files. Every
// operation is scoped to the owning user; a file id belonging to someone
// else behaves as not found.
type File struct {
	logger *slog.Logger
	store  FileStore
}

type FileStore interface {
	SaveFile(ctx context.Context, file *models.File) (*models.File, error)
	FileByID(ctx context.Context, fileID, userID int64) (*models.File, error)
	Files(ctx context.Context, userID int64, offset, limit int) ([]*models.File, int64, error)
	UpdateFile(ctx context.Context, file *models.File) (*models.File, error)
	DeleteFile(ctx context.Context, fileID, userID int64) error
}

var ErrFileNotFound = errors.New("file not found")

const (
	defaultPage     = 1
	defaultListSize = 10
)

// New returns a new instance of the File service.
func New(logger *slog.Logger, store FileStore) *File {
	return &File{
		logger: logger,
		store:  store,
	}
}

// Upload records the metadata of a blob already written to disk.
func (f *File) Upload(ctx context.Context, file *models.File) (*models.File, error) {
	const op = "file.Upload"
	log := f.logger.With(
		slog.String("op", op),
		slog.Int64("userID", file.UserID),
	)

	saved, err := f.store.SaveFile(ctx, file)
	if err != nil {
		log.Error("failed to save file", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("file uploaded", slog.Int64("fileID", saved.ID), slog.String("name", saved.Name))

	return saved, nil
}

// List returns one page of the user's files, newest first. Page and listSize
// fall back to 1 and 10 when non-positive.
func (f *File) List(ctx context.Context, userID int64, page, listSize int) (*models.FileList, error) {
	const op = "file.List"
	log := f.logger.With(slog.String("op", op), slog.Int64("userID", userID))

	if page < 1 {
		page = defaultPage
	}
	if listSize < 1 {
		listSize = defaultListSize
	}

	items, total, err := f.store.Files(ctx, userID, (page-1)*listSize, listSize)
	if err != nil {
		log.Error("failed to list files", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.FileList{Items: items, Total: total}, nil
}

// Get returns the metadata of one file owned by the user.
func (f *File) Get(ctx context.Context, fileID, userID int64) (*models.File, error) {
	const op = "file.Get"
	log := f.logger.With(slog.String("op", op), slog.Int64("fileID", fileID))

	file, err := f.store.FileByID(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrFileNotFound)
		}
		log.Error("failed to get file", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return file, nil
}

// Update replaces a file's blob and metadata. The previous blob is removed
// from disk once the row points at the new one.
func (f *File) Update(ctx context.Context, fileID, userID int64, updated *models.File) (*models.File, error) {
	const op = "file.Update"
	log := f.logger.With(slog.String("op", op), slog.Int64("fileID", fileID))

	old, err := f.store.FileByID(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrFileNotFound)
		}
		log.Error("failed to get file", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	updated.ID = fileID
	updated.UserID = userID

	saved, err := f.store.UpdateFile(ctx, updated)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrFileNotFound)
		}
		log.Error("failed to update file", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if old.Path != saved.Path {
		f.removeBlob(log, old.Path)
	}

	log.Info("file updated", slog.String("name", saved.Name))

	return saved, nil
}

// Delete removes the metadata row and then the blob. A blob already missing
// from disk is logged but does not fail the operation; the row is the source
// of truth.
func (f *File) Delete(ctx context.Context, fileID, userID int64) error {
	const op = "file.Delete"
	log := f.logger.With(slog.String("op", op), slog.Int64("fileID", fileID))

	file, err := f.store.FileByID(ctx, fileID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return fmt.Errorf("%s: %w", op, ErrFileNotFound)
		}
		log.Error("failed to get file", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := f.store.DeleteFile(ctx, fileID, userID); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return fmt.Errorf("%s: %w", op, ErrFileNotFound)
		}
		log.Error("failed to delete file", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	f.removeBlob(log, file.Path)

	log.Info("file deleted", slog.String("name", file.Name))

	return nil
}

func (f *File) removeBlob(log *slog.Logger, path string) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			log.Warn("blob missing on disk", slog.String("path", path))
			return
		}
		log.Error("failed to remove blob", slog.String("path", path), sl.Err(err))
	}
}
