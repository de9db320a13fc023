package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"mediationflow/dispute"
	"mediationflow/identity"
	"mediationflow/media"
	"mediationflow/message"
	"mediationflow/presence"
	"mediationflow/session"
)

// Deps bundles the services the participant-facing surface is built from.
type Deps struct {
	Identity *identity.Service
	Disputes *dispute.Service
	Sessions *session.Service
	Messages *message.Service
	Presence presence.Store
	Intake   *media.Intake

	MediaDir       string
	MediaBaseURL   string
	AllowedOrigins []string

	// Loop intervals advertised to polling clients via GET /config. Zero
	// selects the reference defaults (3s poll, 30s heartbeat).
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

// NewRouter wires the full HTTP surface: auth, session polling endpoints,
// heartbeat and message submission, media upload, pause and decision.
func NewRouter(deps Deps) *chi.Mux {
	if deps.PollInterval <= 0 {
		deps.PollInterval = 3 * time.Second
	}
	if deps.HeartbeatInterval <= 0 {
		deps.HeartbeatInterval = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &handlers{deps: deps}

	r.Post("/auth/login", h.login)
	r.Post("/auth/provision", h.provision)

	if deps.MediaDir != "" {
		fileServer := http.StripPrefix(deps.MediaBaseURL+"/", http.FileServer(http.Dir(deps.MediaDir)))
		r.Get(deps.MediaBaseURL+"/*", fileServer.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(deps.Identity))

		r.Get("/disputes", h.listDisputes)
		r.Get("/config", h.clientConfig)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(h.requireParticipant)

			r.Post("/", h.ensureSession)
			r.Get("/", h.getSession)
			r.Get("/presence", h.getPresence)
			r.Get("/messages", h.listMessages)
			r.Post("/heartbeat", h.heartbeat)
			r.Post("/messages", h.postMessage)
			r.Post("/uploads", h.upload)
			r.Post("/pause", h.pause)
			r.Post("/decision", h.decision)
		})
	})

	return r
}
