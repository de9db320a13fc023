package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mediationflow/config"
	"mediationflow/db"
	"mediationflow/dispute"
	"mediationflow/httpapi"
	"mediationflow/identity"
	"mediationflow/media"
	"mediationflow/message"
	"mediationflow/presence"
	"mediationflow/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	identityService := identity.NewService(identity.NewRepository(pool), cfg.JWTSecret)
	disputeService := dispute.NewService(dispute.NewRepository(pool))
	presenceStore := presence.NewStore(pool, presence.Policy{StaleAfter: cfg.PresenceStale})
	sessionService := session.NewService(session.NewRepository(pool), presenceStore, identityService, disputeService, cfg.UploadTimeout)
	messageService := message.NewService(message.NewRepository(pool), sessionService)
	intake := media.NewIntake(media.NewDiskStorage(cfg.MediaDir, cfg.MediaBaseURL), cfg.UploadTimeout)

	go sweepPresence(ctx, presenceStore, cfg.HeartbeatInterval)

	router := httpapi.NewRouter(httpapi.Deps{
		Identity:          identityService,
		Disputes:          disputeService,
		Sessions:          sessionService,
		Messages:          messageService,
		Presence:          presenceStore,
		Intake:            intake,
		MediaDir:          cfg.MediaDir,
		MediaBaseURL:      cfg.MediaBaseURL,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("mediation api listening on %s", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("serve: %v", err)
	}
}

// sweepPresence persists the absent flag for participants whose heartbeats
// stopped, so raw presence rows agree with the snapshot view.
func sweepPresence(ctx context.Context, store *presence.PGStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := store.MarkStale(ctx); err != nil {
				log.Printf("presence sweep: %v", err)
			} else if n > 0 {
				log.Printf("presence sweep: %d participant(s) marked absent", n)
			}
		}
	}
}
