// Package status exposes run progress over HTTP.
package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/airdrop-claimer/internal/progress"
)

// Source is satisfied by *progress.Tracker.
type Source interface {
	Snapshot() progress.Snapshot
}

type Handler struct {
	src Source
}

func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	rg.GET("/progress", h.handleProgress)
}

func (h *Handler) handleProgress(c *gin.Context) {
	s := h.src.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"run_id":     s.RunID,
		"action":     s.Action,
		"total":      s.Total,
		"done":       s.Done,
		"remaining":  int64(s.Total) - s.Done,
		"started_at": s.StartedAt,
		"counts": gin.H{
			string(progress.Confirmed): s.Confirmed,
			string(progress.Rejected):  s.Rejected,
			string(progress.Skipped):   s.Skipped,
			string(progress.Failed):    s.Failed,
		},
	})
}

// Serve runs the status server on port until ctx is cancelled.
func Serve(ctx context.Context, port int, src Source, log *zap.Logger) {
	r := gin.New()
	r.Use(gin.Recovery())
	NewHandler(src).Register(&r.RouterGroup)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("status server shutdown error", zap.Error(err))
		}
	}()

	log.Info("status server starting", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("status server error", zap.Error(err))
	}
}
