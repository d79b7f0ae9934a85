package app

import (
	"context"
	"log/slog"

	httpapp "filevault/internal/app/http"
	"filevault/internal/config"
	authhttp "filevault/internal/http/auth"
	filehttp "filevault/internal/http/file"
	"filevault/internal/http/router"
	authservice "filevault/internal/services/auth"
	fileservice "filevault/internal/services/file"
	"filevault/internal/storage/memory"
	"filevault/internal/storage/mongodb"
	"filevault/internal/storage/sqlite"
)

type App struct {
	HTTPSrv *httpapp.App
}

// Store is what the services need from whichever backend the config picked.
type Store interface {
	authservice.UserSaver
	authservice.UserProvider
	authservice.SessionStore
	fileservice.FileStore
}

func New(logger *slog.Logger, cfg *config.Config) *App {
	store := mustStorage(logger, cfg)

	authService := authservice.New(
		logger,
		store,
		store,
		store,
		cfg.Auth.Secret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	fileService := fileservice.New(logger, store)

	secureCookies := cfg.Env == "prod"
	authServer := authhttp.New(authService, secureCookies)
	fileServer := filehttp.New(fileService, cfg.Files.Dir, cfg.Files.MaxUploadSize)

	handler := router.New(authServer, fileServer, cfg.HTTP.Timeout)
	httpApp := httpapp.New(logger, handler, cfg.HTTP.Address, cfg.HTTP.Timeout, cfg.HTTP.IdleTimeout)

	return &App{
		HTTPSrv: httpApp,
	}
}

func mustStorage(logger *slog.Logger, cfg *config.Config) Store {
	switch cfg.Storage.Type {
	case "sqlite":
		store, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			panic(err)
		}
		return store
	case "mongo":
		store, err := mongodb.New(
			context.Background(),
			cfg.Storage.Mongo.URI,
			cfg.Storage.Mongo.Database,
			cfg.Auth.RefreshTokenTTL,
		)
		if err != nil {
			panic(err)
		}
		return store
	case "memory":
		logger.Warn("using in-memory storage, all data is lost on restart")
		return memory.New()
	default:
		panic("unknown storage type: " + cfg.Storage.Type)
	}
}
