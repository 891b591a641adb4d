package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lojinha.app/internal/httpapi"
	"lojinha.app/internal/identity"
	"lojinha.app/internal/obs"
	"lojinha.app/internal/store/pg"
	"lojinha.app/internal/stream"
	"lojinha.app/internal/tenant"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("LOJINHA_PG_DSN")
	if dsn == "" {
		log.Fatal("missing LOJINHA_PG_DSN")
	}
	pgStore, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer pgStore.Close()

	opts := []tenant.Option{}
	apiOpts := []httpapi.Option{httpapi.WithStream(stream.New())}
	if url := os.Getenv("LOJINHA_IDENTITY_URL"); url != "" {
		dir, err := identity.NewClient(url, os.Getenv("LOJINHA_IDENTITY_TOKEN"))
		if err != nil {
			log.Fatalf("identity client: %v", err)
		}
		opts = append(opts, tenant.WithIdentity(dir))
		apiOpts = append(apiOpts, httpapi.WithDirectory(dir))
	}

	tenants, err := tenant.NewService(pgStore, opts...)
	if err != nil {
		log.Fatalf("tenant service: %v", err)
	}

	api := httpapi.New(tenants, httpapi.ReadyProbe{DB: pgStore.DB()}, version, apiOpts...)

	addr := os.Getenv("LOJINHA_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	// WriteTimeout stays unset: /v1/stores/{id}/events holds SSE connections open.
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting lojinha-api %s on %s", version, srv.Addr)

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
	log.Println("Stopped")
}
