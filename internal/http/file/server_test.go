package file_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authhttp "filevault/internal/http/auth"
	filehttp "filevault/internal/http/file"
	authservice "filevault/internal/services/auth"
	fileservice "filevault/internal/services/file"
	"filevault/internal/storage/memory"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (http.Handler, []*http.Cookie) {
	t.Helper()

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := authservice.New(logger, store, store, store, "test-secret", 10*time.Minute, 30*24*time.Hour)
	fileSvc := fileservice.New(logger, store)

	authSrv := authhttp.New(authSvc, false)
	fileSrv := filehttp.New(fileSvc, t.TempDir(), 1<<20)

	r := chi.NewRouter()
	r.Route("/auth", authSrv.Register)
	r.Route("/file", func(r chi.Router) {
		r.Use(authSrv.Authenticate)
		fileSrv.Register(r)
	})

	body, err := json.Marshal(map[string]string{"id": "user1", "password": "Abc123!pass"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	return r, rec.Result().Cookies()
}

func uploadReq(t *testing.T, method, path, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(handler http.Handler, req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func uploadOne(t *testing.T, handler http.Handler, cookies []*http.Cookie, filename, content string) int64 {
	t.Helper()

	rec := do(handler, uploadReq(t, http.MethodPost, "/file/upload", filename, content), cookies)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Message string `json:"message"`
		File    struct {
			ID int64 `json:"id"`
		} `json:"file"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "File uploaded successfully", body.Message)
	require.NotZero(t, body.File.ID)
	return body.File.ID
}

func TestUploadAndGet(t *testing.T) {
	handler, cookies := newServer(t)

	id := uploadOne(t, handler, cookies, "report.pdf", "pdf bytes")

	rec := do(handler, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/file/%d", id), nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var file struct {
		Name      string `json:"name"`
		Extension string `json:"extension"`
		Size      int64  `json:"size"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &file))
	assert.Equal(t, "report.pdf", file.Name)
	assert.Equal(t, ".pdf", file.Extension)
	assert.Equal(t, int64(len("pdf bytes")), file.Size)
}

func TestUpload_NoFilePart(t *testing.T) {
	handler, cookies := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/file/upload", nil)
	rec := do(handler, req, cookies)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No file uploaded")
}

func TestList_Pagination(t *testing.T) {
	handler, cookies := newServer(t)

	for i := 0; i < 12; i++ {
		uploadOne(t, handler, cookies, fmt.Sprintf("f%02d.txt", i), "data")
	}

	rec := do(handler, httptest.NewRequest(http.MethodGet, "/file/list?page=2&list_size=10", nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, int64(12), list.Total)
	assert.Len(t, list.Items, 2)

	rec = do(handler, httptest.NewRequest(http.MethodGet, "/file/list?page=0", nil), cookies)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid pagination params")
}

func TestDownload(t *testing.T) {
	handler, cookies := newServer(t)

	id := uploadOne(t, handler, cookies, "notes.txt", "hello world")

	rec := do(handler, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/file/download/%d", id), nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `"notes.txt"`)
}

func TestDelete(t *testing.T) {
	handler, cookies := newServer(t)

	id := uploadOne(t, handler, cookies, "gone.txt", "bye")

	rec := do(handler, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/file/delete/%d", id), nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "File deleted successfully")

	rec = do(handler, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/file/%d", id), nil), cookies)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "File not found")
}

func TestUpdate(t *testing.T) {
	handler, cookies := newServer(t)

	id := uploadOne(t, handler, cookies, "draft.txt", "v1")

	rec := do(handler, uploadReq(t, http.MethodPut, fmt.Sprintf("/file/update/%d", id), "final.txt", "v2 longer"), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "File updated successfully")

	rec = do(handler, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/file/%d", id), nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "final.txt")
}

func TestInvalidID(t *testing.T) {
	handler, cookies := newServer(t)

	rec := do(handler, httptest.NewRequest(http.MethodGet, "/file/download/abc", nil), cookies)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid ID format")
}

func TestRequiresAuth(t *testing.T) {
	handler, _ := newServer(t)

	rec := do(handler, httptest.NewRequest(http.MethodGet, "/file/list", nil), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access token not found")
}
