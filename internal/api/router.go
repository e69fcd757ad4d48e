package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/arencloud/stratus/internal/config"
	"github.com/arencloud/stratus/internal/inference"
	"github.com/arencloud/stratus/internal/logging"
	"github.com/arencloud/stratus/internal/objectstore"
	"github.com/arencloud/stratus/internal/rds"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

type statusRecorder struct {
	http.ResponseWriter
	code  int
	bytes int64
}

func (sr *statusRecorder) WriteHeader(statusCode int) {
	sr.code = statusCode
	sr.ResponseWriter.WriteHeader(statusCode)
}
func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Server owns the three orchestrators the dispatcher fans out to.
type Server struct {
	cfg       *config.Config
	logger    logging.Logger
	store     *objectstore.Store
	rds       *rds.Orchestrator
	inference *inference.Proxy
}

func NewServer(cfg *config.Config, logger logging.Logger, store *objectstore.Store, orch *rds.Orchestrator, proxy *inference.Proxy) *Server {
	return &Server{cfg: cfg, logger: logger, store: store, rds: orch, inference: proxy}
}

// Router wires the middleware stack around the single dispatch handler.
// Every path funnels through one classification pass; there are no
// per-protocol route registrations because the protocols overlap at "/".
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"}, AllowedHeaders: []string{"*"}}))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddUint64(&totalRequests, 1)
			id := uuid.NewString()
			w.Header().Set("X-Request-Id", id)
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: 200}
			next.ServeHTTP(rec, r)
			dur := time.Since(start)
			if r.ContentLength > 0 {
				atomic.AddUint64(&bytesIn, uint64(r.ContentLength))
			}
			if rec.bytes > 0 {
				atomic.AddUint64(&bytesOut, uint64(rec.bytes))
			}
			atomic.AddUint64(&totalDurationNs, uint64(dur))
			if rec.code >= 500 {
				atomic.AddUint64(&total5xx, 1)
			} else if rec.code >= 400 {
				atomic.AddUint64(&total4xx, 1)
			}
			s.logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.code,
				"durationMs", float64(dur)/1e6,
				"requestId", id,
				"bytesIn", r.ContentLength,
				"bytesOut", rec.bytes,
			)
		})
	})

	r.Handle("/", http.HandlerFunc(s.dispatch))
	r.Handle("/*", http.HandlerFunc(s.dispatch))
	return r
}
