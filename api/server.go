package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"immo-scraper/models"
	"immo-scraper/storage"
	"immo-scraper/utils"
)

// Server exposes the latest run and the tracking snapshot read-only.
type Server struct {
	store  storage.SnapshotStore
	logger *utils.Logger

	mu       sync.RWMutex
	stats    *models.RunStats
	listings []*models.Listing
}

func NewServer(store storage.SnapshotStore, logger *utils.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// SetRun publishes the result of a finished run.
func (s *Server) SetRun(stats models.RunStats, listings []*models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = &stats
	s.listings = listings
}

// NewRouter constructs a Gin engine with registered routes.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", handleHealth)
	r.GET("/stats", s.handleStats)
	r.GET("/listings", s.handleListings)
	r.GET("/snapshot", s.handleSnapshot)
	r.GET("/snapshot/:id", s.handleSnapshotEntry)
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.NewRouter()}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("[api] Listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run finished yet"})
		return
	}
	c.JSON(http.StatusOK, s.stats)
}

// handleListings returns the last feed, optionally filtered by ?source=.
func (s *Server) handleListings(c *gin.Context) {
	src := models.Source(c.Query("source"))

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if src == "" || l.Source == src {
			out = append(out, l)
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "listings": out})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	snap, err := s.store.Load(c.Request.Context())
	if err != nil {
		s.logger.Error("[api] Load snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(snap), "entries": snap})
}

func (s *Server) handleSnapshotEntry(c *gin.Context) {
	snap, err := s.store.Load(c.Request.Context())
	if err != nil {
		s.logger.Error("[api] Load snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	entry, ok := snap[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown listing id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "entry": entry})
}
