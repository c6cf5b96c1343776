package operator

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/resync", handler.ResyncAll)
		r.Post("/{orderID}/resync", handler.ResyncOrder)
	})

	r.Route("/consistency", func(r chi.Router) {
		r.Get("/report", handler.ConsistencyReport)
		r.Post("/repair", handler.Repair)
	})

	r.Route("/sagas", func(r chi.Router) {
		r.Get("/", handler.ListSagas)
		r.Post("/timeouts/scan", handler.ScanTimeouts)
		r.Get("/{sagaID}", handler.GetSaga)
		r.Post("/{sagaID}/compensate", handler.CompensateSaga)
	})

	return r
}

// Server serves router on addr until the context passed to Run is done
type Server struct {
	server          *http.Server
	logger          log.Logger
	shutdownTimeout time.Duration
}

func NewServer(addr string, router http.Handler, logger log.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: time.Second * 10,
		},
		logger:          logger,
		shutdownTimeout: time.Second * 10,
	}
}

func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)

	go func() {
		s.logger.Logf(log.InfoLevel, "operator server listens on %s", s.server.Addr)
		errs <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrapf(err, "serving operator on %s", s.server.Addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down operator server")
	}

	s.logger.Logf(log.InfoLevel, "operator server stopped")

	return nil
}
