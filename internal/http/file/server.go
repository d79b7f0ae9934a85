package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"filevault/internal/domain/models"
	authhttp "filevault/internal/http/auth"
	"filevault/internal/lib/api"
	fileservice "filevault/internal/services/file"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Files is the service surface the HTTP layer needs.
type Files interface {
	Upload(ctx context.Context, file *models.File) (*models.File, error)
	List(ctx context.Context, userID int64, page, listSize int) (*models.FileList, error)
	Get(ctx context.Context, fileID, userID int64) (*models.File, error)
	Update(ctx context.Context, fileID, userID int64, updated *models.File) (*models.File, error)
	Delete(ctx context.Context, fileID, userID int64) error
}

type Server struct {
	files         Files
	dir           string
	maxUploadSize int64
}

// New returns a file HTTP server storing blobs under dir.
func New(files Files, dir string, maxUploadSize int64) *Server {
	return &Server{files: files, dir: dir, maxUploadSize: maxUploadSize}
}

// Register mounts the file routes. The caller is expected to wrap them with
// the auth middleware; every handler requires an authenticated user.
func (s *Server) Register(r chi.Router) {
	r.Post("/upload", s.upload)
	r.Get("/list", s.list)
	r.Get("/download/{id}", s.download)
	r.Put("/update/{id}", s.update)
	r.Delete("/delete/{id}", s.remove)
	r.Get("/{id}", s.get)
}

type fileResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Extension  string    `json:"extension"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type fileListResponse struct {
	Items []fileResponse `json:"items"`
	Total int64          `json:"total"`
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := authhttp.UserIDFromContext(r.Context())
	if !ok {
		api.RespondMessage(w, http.StatusUnauthorized, "Access token not found")
		return
	}

	meta, ok := s.receiveBlob(w, r, userID)
	if !ok {
		return
	}

	saved, err := s.files.Upload(r.Context(), meta)
	if err != nil {
		s.removeOrphan(meta.Path)
		s.respondFileError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusCreated, map[string]any{
		"message": "File uploaded successfully",
		"file":    toFileResponse(saved),
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := authhttp.UserIDFromContext(r.Context())
	if !ok {
		api.RespondMessage(w, http.StatusUnauthorized, "Access token not found")
		return
	}

	page, ok := queryInt(r, "page", 1)
	if !ok {
		api.RespondMessage(w, http.StatusBadRequest, "Invalid pagination params")
		return
	}
	listSize, ok := queryInt(r, "list_size", 10)
	if !ok {
		api.RespondMessage(w, http.StatusBadRequest, "Invalid pagination params")
		return
	}

	list, err := s.files.List(r.Context(), userID, page, listSize)
	if err != nil {
		s.respondFileError(w, err)
		return
	}

	resp := fileListResponse{Items: make([]fileResponse, 0, len(list.Items)), Total: list.Total}
	for _, f := range list.Items {
		resp.Items = append(resp.Items, toFileResponse(f))
	}
	api.RespondJSON(w, http.StatusOK, resp)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authhttp.UserIDFromContext(r.Context())
	if !ok {
		api.RespondMessage(w, http.StatusUnauthorized, "Access token not found")
		return
	}

	fileID, ok := pathID(w, r)
	if !ok {
		return
	}

	file, err := s.files.Get(r.Context(), fileID, userID)
	if err != nil {
		s.respondFileError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, toFileResponse(file))
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	userID, ok := authhttp.UserIDFromContext(r.Context())
	if !ok {
		api.RespondMessage(w, http.StatusUnauthorized, "Access token not found")
		return
	}

	fileID, ok := pathID(w, r)
	if !ok {
		return
	}

	file, err := s.files.Get(r.Context(), fileID, userID)
	if err != nil {
		s.respondFileError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Type", file.MimeType)
	http.ServeFile(w, r, file.Path)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	userID, ok := authhttp.UserIDFromContext(r.Context())
	if !ok {
		api.RespondMessage(w, http.StatusUnauthorized, "Access token not found")
		return
	}

	fileID, ok := pathID(w, r)
	if !ok {
		return
	}

	meta, ok := s.receiveBlob(w, r, userID)
	if !ok {
		return
	}

	saved, err := s.files.Update(r.Context(), fileID, userID, meta)
	if err != nil {
		s.removeOrphan(meta.Path)
		s.respondFileError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "File updated successfully",
		"file":    toFileResponse(saved),
	})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := authhttp.UserIDFromContext(r.Context())
	if !ok {
		api.RespondMessage(w, http.StatusUnauthorized, "Access token not found")
		return
	}

	fileID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.files.Delete(r.Context(), fileID, userID); err != nil {
		s.respondFileError(w, err)
		return
	}

	api.RespondMessage(w, http.StatusOK, "File deleted successfully")
}

// receiveBlob reads the multipart "file" part, writes it under the upload
// dir with a generated name, and returns the metadata to persist.
func (s *Server) receiveBlob(w http.ResponseWriter, r *http.Request, userID int64) (*models.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	part, header, err := r.FormFile("file")
	if err != nil {
		api.RespondMessage(w, http.StatusBadRequest, "No file uploaded")
		return nil, false
	}
	defer part.Close()

	path, size, err := s.writeBlob(part, header)
	if err != nil {
		api.RespondMessage(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &models.File{
		Name:      header.Filename,
		Extension: filepath.Ext(header.Filename),
		MimeType:  mimeType,
		Size:      size,
		Path:      path,
		UserID:    userID,
	}, true
}

func (s *Server) writeBlob(part multipart.File, header *multipart.FileHeader) (string, int64, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", 0, err
	}

	path := filepath.Join(s.dir, uuid.New().String()+filepath.Ext(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer dst.Close()

	size, err := io.Copy(dst, part)
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}

	return path, size, nil
}

// removeOrphan drops a blob whose metadata never made it into the store.
func (s *Server) removeOrphan(path string) {
	_ = os.Remove(path)
}

func (s *Server) respondFileError(w http.ResponseWriter, err error) {
	if errors.Is(err, fileservice.ErrFileNotFound) {
		api.RespondMessage(w, http.StatusNotFound, "File not found")
		return
	}
	api.RespondMessage(w, http.StatusInternalServerError, "Internal server error")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		api.RespondMessage(w, http.StatusBadRequest, "Invalid ID format")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

func toFileResponse(f *models.File) fileResponse {
	return fileResponse{
		ID:         f.ID,
		Name:       f.Name,
		Extension:  f.Extension,
		MimeType:   f.MimeType,
		Size:       f.Size,
		UploadedAt: f.UploadedAt,
	}
}
