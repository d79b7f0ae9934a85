package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"filevault/internal/domain/models"
	"filevault/internal/storage"
)

// Storage is a mutex-guarded in-memory implementation of the store
// contracts. It backs tests and zero-setup local runs; semantics match the
// SQL backends, including the atomic delete-by-token count.
type Storage struct {
	mu         sync.Mutex
	users      map[int64]*models.User
	usersByLog map[string]int64
	sessions   map[string]*models.Session // keyed by session id
	byToken    map[string]string          // refresh token -> session id
	files      map[int64]*models.File
	nextUserID int64
	nextFileID int64
}

// New returns an empty in-memory storage.
func New() *Storage {
	return &Storage{
		users:      make(map[int64]*models.User),
		usersByLog: make(map[string]int64),
		sessions:   make(map[string]*models.Session),
		byToken:    make(map[string]string),
		files:      make(map[int64]*models.File),
	}
}

func (s *Storage) SaveUser(_ context.Context, loginID string, passHash []byte) (int64, error) {
	const op = "storage.memory.SaveUser"
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByLog[loginID]; ok {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
	}

	s.nextUserID++
	user := &models.User{
		ID:        s.nextUserID,
		LoginID:   loginID,
		PassHash:  append([]byte(nil), passHash...),
		CreatedAt: time.Now(),
	}
	s.users[user.ID] = user
	s.usersByLog[loginID] = user.ID

	return user.ID, nil
}

func (s *Storage) User(_ context.Context, loginID string) (*models.User, error) {
	const op = "storage.memory.User"
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByLog[loginID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	u := *s.users[id]
	return &u, nil
}

func (s *Storage) UserByID(_ context.Context, userID int64) (*models.User, error) {
	const op = "storage.memory.UserByID"
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	u := *user
	return &u, nil
}

func (s *Storage) SaveSession(_ context.Context, id, refreshToken string, userID int64) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &models.Session{
		ID:           id,
		RefreshToken: refreshToken,
		UserID:       userID,
		CreatedAt:    time.Now(),
	}
	s.sessions[id] = sess
	s.byToken[refreshToken] = id

	c := *sess
	return &c, nil
}

func (s *Storage) SessionByToken(_ context.Context, refreshToken string) (*models.Session, error) {
	const op = "storage.memory.SessionByToken"
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[refreshToken]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}
	c := *s.sessions[id]
	return &c, nil
}

func (s *Storage) SessionByID(_ context.Context, id string) (*models.Session, error) {
	const op = "storage.memory.SessionByID"
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}
	c := *sess
	return &c, nil
}

func (s *Storage) DeleteSessionByToken(_ context.Context, refreshToken string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[refreshToken]
	if !ok {
		return 0, nil
	}
	delete(s.byToken, refreshToken)
	delete(s.sessions, id)
	return 1, nil
}

// SetSessionCreatedAt backdates a session. Test helper for exercising the
// absolute refresh lifetime.
func (s *Storage) SetSessionCreatedAt(id string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.CreatedAt = createdAt
	}
}

func (s *Storage) SaveFile(_ context.Context, file *models.File) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextFileID++
	f := *file
	f.ID = s.nextFileID
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now()
	}
	s.files[f.ID] = &f

	c := f
	return &c, nil
}

func (s *Storage) FileByID(_ context.Context, fileID, userID int64) (*models.File, error) {
	const op = "storage.memory.FileByID"
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[fileID]
	if !ok || file.UserID != userID {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
	}
	c := *file
	return &c, nil
}

func (s *Storage) Files(_ context.Context, userID int64, offset, limit int) ([]*models.File, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*models.File
	for _, f := range s.files {
		if f.UserID == userID {
			all = append(all, f)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].UploadedAt.After(all[j].UploadedAt)
	})

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	page := make([]*models.File, 0, end-offset)
	for _, f := range all[offset:end] {
		c := *f
		page = append(page, &c)
	}
	return page, total, nil
}

func (s *Storage) UpdateFile(_ context.Context, file *models.File) (*models.File, error) {
	const op = "storage.memory.UpdateFile"
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.files[file.ID]
	if !ok || old.UserID != file.UserID {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
	}
	f := *file
	f.UploadedAt = old.UploadedAt
	s.files[f.ID] = &f

	c := f
	return &c, nil
}

func (s *Storage) DeleteFile(_ context.Context, fileID, userID int64) error {
	const op = "storage.memory.DeleteFile"
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[fileID]
	if !ok || file.UserID != userID {
		return fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
	}
	delete(s.files, fileID)
	return nil
}
