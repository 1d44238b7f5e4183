// Package admin serves a small local HTTP surface over a downloads client:
// health, channel state, prometheus metrics and the download operations.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/dlport/internal/auth"
	"github.com/danmuck/dlport/internal/downloads"
	"github.com/danmuck/dlport/internal/observability"
	"github.com/danmuck/dlport/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var ErrActionNotFound = errors.New("action not found")

type action func(ctx context.Context, id int) error

type Server struct {
	ID      string
	Addr    string
	Started time.Time

	client  *downloads.Client
	router  *gin.Engine
	actions map[string]action
	auth    auth.Validator
}

func New(id, addr string, corsOrigins []string, client *downloads.Client) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger.With().Str("component", "admin").Logger()))
	r.Use(observability.RequestMetrics(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:      id,
		Addr:    addr,
		Started: time.Now(),
		client:  client,
		router:  r,
		auth:    auth.Open{},
	}
	s.actions = map[string]action{
		downloads.OpOpen:       client.Open,
		downloads.OpShow:       client.Show,
		downloads.OpPause:      client.Pause,
		downloads.OpResume:     client.Resume,
		downloads.OpCancel:     client.Cancel,
		downloads.OpRemoveFile: client.RemoveFile,
		downloads.OpErase: func(ctx context.Context, id int) error {
			return client.Erase(ctx, downloads.ByID(id))
		},
	}
	return s
}

// RequireToken guards POST routes with v. Reads stay open.
func (s *Server) RequireToken(v auth.Validator) {
	if v == nil {
		v = auth.Open{}
	}
	s.auth = v
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	mgr := s.client.Manager()

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.Started).String(),
			"server": s.ID,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !mgr.Connected() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready": status == http.StatusOK,
			"state": mgr.State().String(),
		})
	})

	s.router.GET("/channel", func(c *gin.Context) {
		subs := make(map[string]int)
		for _, kind := range mgr.Events().Kinds() {
			subs[kind] = mgr.Events().Count(kind)
		}
		c.JSON(http.StatusOK, gin.H{
			"peer":        mgr.Config().Peer,
			"codec":       mgr.Codec().Name(),
			"state":       mgr.State().String(),
			"pending":     mgr.Registry().Pending(),
			"subscribers": subs,
		})
	})

	s.router.GET("/downloads", func(c *gin.Context) {
		q := downloads.Query{}
		if raw := c.Query("id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
				return
			}
			q = downloads.ByID(id)
		}
		items, err := s.client.Search(c.Request.Context(), q)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"downloads": items})
	})

	s.router.POST("/downloads", s.authorize, func(c *gin.Context) {
		var opts downloads.DownloadOptions
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := s.client.Download(c.Request.Context(), opts)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})

	s.router.POST("/downloads/:id/actions/:action", s.authorize, func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
			return
		}
		name := c.Param("action")
		if err := s.Execute(c.Request.Context(), name, id); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "id": id, "action": name})
	})
}

func (s *Server) authorize(c *gin.Context) {
	token, _ := auth.BearerToken(c.GetHeader("Authorization"))
	if err := s.auth.Validate(token); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

// Execute runs a named single-download action.
func (s *Server) Execute(ctx context.Context, name string, id int) error {
	run, ok := s.actions[name]
	if !ok {
		return ErrActionNotFound
	}
	if err := run(ctx, id); err != nil {
		log.Error().Str("action", name).Int("id", id).Err(err).Msg("download action failed")
		return err
	}
	log.Info().Str("action", name).Int("id", id).Msg("download action executed")
	return nil
}

// Serve blocks until ctx ends or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	s.RegisterRoutes()
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("admin server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrActionNotFound):
		return http.StatusNotFound
	case errors.Is(err, downloads.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrChannelUnavailable), errors.Is(err, session.ErrDisconnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
