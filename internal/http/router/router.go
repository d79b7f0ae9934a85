package router

import (
	"net/http"
	"time"

	authhttp "filevault/internal/http/auth"
	filehttp "filevault/internal/http/file"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// New assembles the service router. Auth routes are public; every file
// route requires a valid access token.
func New(authSrv *authhttp.Server, fileSrv *filehttp.Server, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Route("/auth", func(r chi.Router) {
		authSrv.Register(r)
	})

	r.Route("/file", func(r chi.Router) {
		r.Use(authSrv.Authenticate)
		fileSrv.Register(r)
	})

	return r
}
