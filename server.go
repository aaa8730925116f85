package main

import (
	"context"
	"errors"
	"net/http"
	"scribe/ffmpeg"
	"scribe/transcripts"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type (
	transcribeReq struct {
		Path     string `json:"path" binding:"required"`
		Language string `json:"language"`
	}

	configReq struct {
		Mode       *transcripts.SplittingMode `json:"mode"`
		Timestamps *bool                      `json:"timestamps"`
	}

	modeInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
)

// runServer serves the HTTP API until ctx is cancelled. Runs started over
// HTTP are bounded by ctx rather than by the request that started them.
func runServer(ctx context.Context, a *app, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(ctx, a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("shutdown server")
	}
	return nil
}

func newRouter(runCtx context.Context, a *app) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(a.log))

	r.GET("/healthz", func(c *gin.Context) {
		if err := a.ready(); err != nil {
			c.JSON(statusFor(err), gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/modes", func(c *gin.Context) {
		modes := make([]modeInfo, 0, len(transcripts.Modes()))
		for _, m := range transcripts.Modes() {
			modes = append(modes, modeInfo{Name: m.String(), Description: m.Description()})
		}
		c.JSON(http.StatusOK, modes)
	})

	r.POST("/transcriptions", func(c *gin.Context) {
		var req transcribeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, err := a.svc.StartTranscribe(runCtx, req.Path, req.Language)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, run)
	})

	r.GET("/transcript", func(c *gin.Context) {
		snap, err := a.sess.Snapshot()
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	r.PUT("/config", func(c *gin.Context) {
		var req configReq
		if err := c.ShouldBindJSON(&req); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, transcripts.ErrUnknownMode) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		snap, changed, err := a.sess.UpdateConfig(func(cfg *transcripts.Config) {
			if req.Mode != nil {
				cfg.Mode = *req.Mode
			}
			if req.Timestamps != nil {
				cfg.IncludeTimestamps = *req.Timestamps
			}
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"changed": changed, "transcript": snap.Transcript, "config": snap.Config})
	})

	r.POST("/refresh", func(c *gin.Context) {
		if err := a.sess.Refresh(); err != nil {
			abortWithError(c, err)
			return
		}
		snap, err := a.sess.Snapshot()
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	r.DELETE("/cache", func(c *gin.Context) {
		if err := a.sess.Clear(); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.DELETE("/exported", func(c *gin.Context) {
		n, err := ffmpeg.RemoveExported(a.workDir)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": n})
	})

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetString("request_id")).
			Msg("request")
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, transcripts.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, transcripts.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, transcripts.ErrUnknownMode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transcripts.ErrConversionFailed),
		errors.Is(err, transcripts.ErrRecognitionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transcripts.ErrRecognizerNotReady),
		errors.Is(err, transcripts.ErrModelNotLoaded),
		errors.Is(err, transcripts.ErrConverterNotFound),
		errors.Is(err, transcripts.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
