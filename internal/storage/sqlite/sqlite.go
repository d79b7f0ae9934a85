package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filevault/internal/domain/models"
	"filevault/internal/storage"

	"github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// sqlite allows a single writer; serializing connections keeps the
	// delete-by-token count trustworthy under concurrent refreshes
	db.SetMaxOpenConns(1)
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) SaveUser(ctx context.Context, loginID string, passHash []byte) (int64, error) {
	const op = "storage.sqlite.SaveUser"
	stmt, err := s.db.Prepare("INSERT INTO users (login_id, pass_hash, created_at) VALUES (?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()
	result, err := stmt.ExecContext(ctx, loginID, passHash, time.Now())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return result.LastInsertId()
}

func (s *Storage) User(ctx context.Context, loginID string) (*models.User, error) {
	const op = "storage.sqlite.User"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, login_id, pass_hash, created_at FROM users WHERE login_id = ?", loginID)
	var user models.User
	err := row.Scan(&user.ID, &user.LoginID, &user.PassHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.sqlite.UserByID"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, login_id, pass_hash, created_at FROM users WHERE id = ?", userID)
	var user models.User
	err := row.Scan(&user.ID, &user.LoginID, &user.PassHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

func (s *Storage) SaveSession(ctx context.Context, id, refreshToken string, userID int64) (*models.Session, error) {
	const op = "storage.sqlite.SaveSession"
	createdAt := time.Now()
	stmt, err := s.db.Prepare("INSERT INTO sessions (id, token, user_id, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()
	if _, err := stmt.ExecContext(ctx, id, refreshToken, userID, createdAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.Session{
		ID:           id,
		RefreshToken: refreshToken,
		UserID:       userID,
		CreatedAt:    createdAt,
	}, nil
}

func (s *Storage) SessionByToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	const op = "storage.sqlite.SessionByToken"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, token, user_id, created_at FROM sessions WHERE token = ?", refreshToken)
	var sess models.Session
	err := row.Scan(&sess.ID, &sess.RefreshToken, &sess.UserID, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sess, nil
}

func (s *Storage) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	const op = "storage.sqlite.SessionByID"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, token, user_id, created_at FROM sessions WHERE id = ?", id)
	var sess models.Session
	err := row.Scan(&sess.ID, &sess.RefreshToken, &sess.UserID, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sess, nil
}

// DeleteSessionByToken removes the session holding the token and reports how
// many rows went away. The single DELETE is the atomic decision point for
// concurrent refreshes racing on the same token.
func (s *Storage) DeleteSessionByToken(ctx context.Context, refreshToken string) (int64, error) {
	const op = "storage.sqlite.DeleteSessionByToken"
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", refreshToken)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return removed, nil
}

func (s *Storage) SaveFile(ctx context.Context, file *models.File) (*models.File, error) {
	const op = "storage.sqlite.SaveFile"
	uploadedAt := time.Now()
	stmt, err := s.db.Prepare(
		"INSERT INTO files (name, extension, mime_type, size, path, user_id, uploaded_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()
	result, err := stmt.ExecContext(ctx,
		file.Name, file.Extension, file.MimeType, file.Size, file.Path, file.UserID, uploadedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	saved := *file
	saved.ID = id
	saved.UploadedAt = uploadedAt
	return &saved, nil
}

func (s *Storage) FileByID(ctx context.Context, fileID, userID int64) (*models.File, error) {
	const op = "storage.sqlite.FileByID"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, extension, mime_type, size, path, user_id, uploaded_at FROM files WHERE id = ? AND user_id = ?",
		fileID, userID)
	var file models.File
	err := row.Scan(&file.ID, &file.Name, &file.Extension, &file.MimeType,
		&file.Size, &file.Path, &file.UserID, &file.UploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &file, nil
}

func (s *Storage) Files(ctx context.Context, userID int64, offset, limit int) ([]*models.File, int64, error) {
	const op = "storage.sqlite.Files"

	var total int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM files WHERE user_id = ?", userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, extension, mime_type, size, path, user_id, uploaded_at FROM files WHERE user_id = ? ORDER BY uploaded_at DESC, id DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var files []*models.File
	for rows.Next() {
		var file models.File
		if err := rows.Scan(&file.ID, &file.Name, &file.Extension, &file.MimeType,
			&file.Size, &file.Path, &file.UserID, &file.UploadedAt); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		files = append(files, &file)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	return files, total, nil
}

func (s *Storage) UpdateFile(ctx context.Context, file *models.File) (*models.File, error) {
	const op = "storage.sqlite.UpdateFile"
	result, err := s.db.ExecContext(ctx,
		"UPDATE files SET name = ?, extension = ?, mime_type = ?, size = ?, path = ? WHERE id = ? AND user_id = ?",
		file.Name, file.Extension, file.MimeType, file.Size, file.Path, file.ID, file.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
	}
	return s.FileByID(ctx, file.ID, file.UserID)
}

func (s *Storage) DeleteFile(ctx context.Context, fileID, userID int64) error {
	const op = "storage.sqlite.DeleteFile"
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM files WHERE id = ? AND user_id = ?", fileID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
	}
	return nil
}
