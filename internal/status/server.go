// Package status serves a small read-only HTTP view of a watch session:
// liveness, the most recent outcome per file, and metadata lookups.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zjrosen/flowsync/internal/cachemanager"
	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/metadata"
	"github.com/zjrosen/flowsync/internal/pipeline"
	"github.com/zjrosen/flowsync/internal/pubsub"
	"github.com/zjrosen/flowsync/internal/synccache"
)

const (
	DefaultTTL  = time.Hour
	metadataTTL = 30 * time.Second
	notFoundTTL = 5 * time.Second
)

// Options wires a Server. Every field except Addr is optional.
type Options struct {
	Addr     string
	TTL      time.Duration
	Broker   *pubsub.Broker[pipeline.Outcome]
	Detector *synccache.Detector
	Metadata metadata.Store
}

// Record is the JSON view of one pipeline outcome.
type Record struct {
	Path          string    `json:"path"`
	State         string    `json:"state"`
	Metadata      string    `json:"metadata"`
	Flow          string    `json:"flow,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	Error         string    `json:"error,omitempty"`
	MetadataError string    `json:"metadata_error,omitempty"`
	Calls         int       `json:"calls"`
	DurationMS    int64     `json:"duration_ms"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Totals counts outcomes since the server started.
type Totals struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Server is the status HTTP server.
type Server struct {
	addr     string
	ttl      time.Duration
	broker   *pubsub.Broker[pipeline.Outcome]
	detector *synccache.Detector
	store    metadata.Store
	started  time.Time

	recent *cachemanager.InMemoryCacheManager[string, Record]
	lookup *cachemanager.ReadThroughCache[string, metadata.Projection, string]
	router *gin.Engine

	mu        sync.Mutex
	totals    Totals
	lastFlush time.Time
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Server{
		addr:     opts.Addr,
		ttl:      ttl,
		broker:   opts.Broker,
		detector: opts.Detector,
		store:    opts.Metadata,
		started:  time.Now(),
		recent:   cachemanager.NewInMemoryCacheManager[string, Record]("recent_outcomes", ttl, cachemanager.DefaultCleanupInterval),
	}
	if s.store != nil {
		projections := cachemanager.NewInMemoryCacheManager[string, metadata.Projection]("metadata_lookup", metadataTTL, cachemanager.DefaultCleanupInterval)
		s.lookup = cachemanager.NewReadThroughCache[string, metadata.Projection, string](projections, s.store.Get,
			cachemanager.ReadThroughOptions{
				NegativeTTL: notFoundTTL,
				Negative:    func(err error) bool { return errors.Is(err, metadata.ErrNotFound) },
			})
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	s.registerRoutes(router)
	s.router = router
	return s
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/status/*path", s.handleFile)
	router.GET("/metadata/:key", s.handleMetadata)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Observe folds one broker event into the server state.
func (s *Server) Observe(ev pubsub.Event[pipeline.Outcome]) {
	switch ev.Type {
	case pubsub.FlushEvent:
		s.mu.Lock()
		s.lastFlush = ev.Timestamp
		s.mu.Unlock()
	case pubsub.OutcomeEvent:
		out := ev.Payload
		s.recent.Set(context.Background(), out.Path, toRecord(out), s.ttl)

		s.mu.Lock()
		switch out.State {
		case pipeline.Created:
			s.totals.Created++
		case pipeline.Updated:
			s.totals.Updated++
		case pipeline.Unchanged:
			s.totals.Unchanged++
		case pipeline.Failed:
			s.totals.Failed++
		}
		s.mu.Unlock()

		// A successful sync may have changed the projection.
		if s.lookup != nil && out.Succeeded() {
			s.lookup.Forget(context.Background(), out.Ref.String())
		}
	}
}

// Run consumes outcome events and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.broker != nil {
		s.broker.Consume(ctx, s.Observe)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info(log.CatStatus, "status server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info(log.CatStatus, "status server stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	items := s.recent.Items(c.Request.Context())
	files := make([]Record, 0, len(items))
	for _, r := range items {
		files = append(files, r)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	s.mu.Lock()
	totals := s.totals
	lastFlush := s.lastFlush
	s.mu.Unlock()

	body := gin.H{
		"files":  files,
		"totals": totals,
	}
	if !lastFlush.IsZero() {
		body["last_flush"] = lastFlush
	}
	if s.detector != nil {
		body["cache_entries"] = len(s.detector.Entries())
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleFile(c *gin.Context) {
	ctx := c.Request.Context()
	raw := c.Param("path")

	// Absolute paths keep their leading slash; relative ones lose it.
	for _, key := range []string{raw, strings.TrimPrefix(raw, "/")} {
		if r, ok := s.recent.Get(ctx, key); ok {
			c.JSON(http.StatusOK, r)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no recent outcome for " + strings.TrimPrefix(raw, "/")})
}

func (s *Server) handleMetadata(c *gin.Context) {
	if s.lookup == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metadata store disabled"})
		return
	}
	key := c.Param("key")
	p, err := s.lookup.Get(c.Request.Context(), key, key, metadataTTL)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no metadata for " + key})
	case err != nil:
		log.ErrorErr(log.CatStatus, "metadata lookup failed", err, "key", key)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, p)
	}
}

func toRecord(o pipeline.Outcome) Record {
	r := Record{
		Path:        o.Path,
		State:       string(o.State),
		Metadata:    string(o.Metadata),
		Fingerprint: string(o.Fingerprint),
		Error:       o.ErrorMessage(),
		Calls:       o.Calls,
		DurationMS:  o.Duration.Milliseconds(),
		FinishedAt:  o.FinishedAt,
	}
	if o.Ref.ID != "" {
		r.Flow = o.Ref.String()
	}
	if o.MetadataErr != nil {
		r.MetadataError = o.MetadataErr.Error()
	}
	return r
}

// requestLogger logs each request through the category logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug(log.CatStatus, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}
