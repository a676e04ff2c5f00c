package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authd.dev/internal/authz"
	"authd.dev/internal/config"
	"authd.dev/internal/httpapi"
	"authd.dev/internal/identity"
	"authd.dev/internal/migrate"
	"authd.dev/internal/obs"
	"authd.dev/internal/session"
	"authd.dev/internal/store/memory"
	"authd.dev/internal/store/pg"
	"authd.dev/internal/token"
	"authd.dev/internal/usertoken"
	"authd.dev/migrations"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.SetBuildInfo(version)

	cfg, err := config.Load()
	if err != nil {
		// A weak signing key must never mint a session.
		log.Fatalf("config: %v", err)
	}

	codec, err := token.NewCodec(cfg.SigningKey)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	features := authz.FeatureConfig{Providers: cfg.ProviderNames()}

	var (
		directory authz.Store
		sessStore session.Store
		tokStore  usertoken.Store
		probe     httpapi.ReadyProbe
		closeFn   func()
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		mgr := migrate.NewManager(store.DB(), migrations.Files)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := mgr.Up(ctx); err != nil {
			cancel()
			log.Fatalf("migrate: %v", err)
		}
		cancel()
		directory, sessStore, tokStore = store, store.Sessions(), store.Tokens()
		probe = httpapi.ReadyProbe{DB: store.DB()}
		closeFn = func() { _ = store.Close() }
	} else {
		// Storeless development mode; nothing survives a restart.
		log.Printf("AUTHD_PG_DSN not set, using in-memory storage")
		store := memory.New()
		directory, sessStore, tokStore = store, store, store.Tokens()
		closeFn = func() {}
	}

	tokens := usertoken.NewService(tokStore)
	authzSvc := authz.NewService(directory, features,
		authz.WithTokens(tokens),
		authz.WithBaseURL(cfg.BaseURL),
		authz.WithMailer(identity.LogMailer{}),
	)
	resolver := authz.NewResolver(directory, features, authzSvc.Provisioner())

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := authzSvc.Provisioner().EnsureCatalog(startCtx); err != nil {
		startCancel()
		log.Fatalf("ensure permission catalog: %v", err)
	}
	startCancel()

	sessOpts := []session.Option{session.WithSecureCookies(cfg.Production())}
	if cfg.SessionTTL > 0 {
		sessOpts = append(sessOpts, session.WithTTL(cfg.SessionTTL))
	}
	if cfg.CookieName != "" {
		sessOpts = append(sessOpts, session.WithCookieName(cfg.CookieName))
	}
	sessions := session.NewService(sessStore, directory, codec, sessOpts...)

	api := httpapi.New(sessions, authzSvc, resolver, directory, probe, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authd %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	closeFn()
	log.Println("Stopped")
}
