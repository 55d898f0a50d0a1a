package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"meddoc-assistant/internal/infra/markdown"
	"meddoc-assistant/internal/usecase"
)

// Server wires the HTTP surface: auth, patients, chat context, the
// streaming chat relay, and document management.
type Server struct {
	addr           string
	auth           *AuthManager
	apiKey         string
	patientUC      usecase.PatientUseCase
	sessionUC      usecase.SessionUseCase
	chatUC         usecase.ChatUseCase
	documentUC     usecase.DocumentUseCase
	renderer       *markdown.Renderer
	maxUploadBytes int64
	log            *zerolog.Logger
	server         *http.Server
}

func NewServer(
	addr string,
	auth *AuthManager,
	apiKey string,
	patientUC usecase.PatientUseCase,
	sessionUC usecase.SessionUseCase,
	chatUC usecase.ChatUseCase,
	documentUC usecase.DocumentUseCase,
	renderer *markdown.Renderer,
	maxUploadBytes int64,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		addr:           addr,
		auth:           auth,
		apiKey:         apiKey,
		patientUC:      patientUC,
		sessionUC:      sessionUC,
		chatUC:         chatUC,
		documentUC:     documentUC,
		renderer:       renderer,
		maxUploadBytes: maxUploadBytes,
		log:            logger,
	}
}

// jsonTimeout bounds the non-streaming JSON routes. The SSE relay is
// exempt; a turn may legitimately outlast it.
const jsonTimeout = 15 * time.Second

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		// Authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Verify)

			r.Route("/patients", func(r chi.Router) {
				r.Use(Timeout(jsonTimeout))
				r.Post("/", s.handlePatientCreate)
				r.Get("/", s.handlePatientList)
				r.Get("/{id}", s.handlePatientGet)
			})

			r.Route("/context", func(r chi.Router) {
				r.Use(Timeout(jsonTimeout))
				r.Post("/open", s.handleContextOpen)
				r.Post("/close", s.handleContextClose)
				r.Get("/", s.handleContextCurrent)
			})

			r.Route("/chat", func(r chi.Router) {
				// The ask relay streams for up to a full assistant turn;
				// it carries its own timeout inside the use case.
				r.Post("/ask", s.handleChatAsk)
				r.With(Timeout(jsonTimeout)).Get("/draft", s.handleChatDraft)
				r.With(Timeout(jsonTimeout)).Get("/{patientID}/messages", s.handleChatMessages)
				r.With(Timeout(jsonTimeout)).Delete("/{patientID}/messages", s.handleChatClear)
			})

			r.Route("/documents", func(r chi.Router) {
				r.Use(Timeout(jsonTimeout))
				r.Post("/", s.handleDocumentUpload)
				r.Get("/search", s.handleDocumentSearch)
				r.Get("/{id}", s.handleDocumentGet)
				r.Delete("/{id}", s.handleDocumentDelete)
			})
			r.With(Timeout(jsonTimeout)).Get("/patients/{patientID}/documents", s.handleDocumentList)
		})
	})

	return Chain(r,
		Recover(s.log),
		TraceID(s.log),
		RequestLog(s.log),
	)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.addr).Msg("HTTP server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
