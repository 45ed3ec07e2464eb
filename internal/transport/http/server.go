package http

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	channelService "github.com/reshetovitsme/notify-relay/internal/modules/channel/service"
	feedService "github.com/reshetovitsme/notify-relay/internal/modules/feed/service"
	"github.com/reshetovitsme/notify-relay/internal/shared/config"
	"github.com/reshetovitsme/notify-relay/internal/shared/errors"
	"github.com/samber/oops"
	sloghttp "github.com/samber/slog-http"
)

const maxPublishBody = 1 << 20

// Server is the notification gateway: the publish endpoint, channel feeds
// and the Telegram webhook route.
type Server struct {
	cfg            *config.Config
	channelService *channelService.Service
	feedService    *feedService.Service
	logger         *slog.Logger

	webhook   http.Handler
	server    *http.Server
	publishes sync.WaitGroup
}

type publishRequest struct {
	ChannelID string `json:"channelId"`
	Message   string `json:"message"`
}

type publishResponse struct {
	Status    string `json:"status"`
	Delivered bool   `json:"delivered"`
}

// New creates a new HTTP server
func New(cfg *config.Config, channelService *channelService.Service, feedService *feedService.Service) *Server {
	return &Server{
		cfg:            cfg,
		channelService: channelService,
		feedService:    feedService,
		logger:         slog.Default(),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetLogger sets the logger
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetWebhookHandler mounts the Telegram webhook on the configured webhook path.
func (s *Server) SetWebhookHandler(h http.Handler) {
	s.webhook = h
}

// Handler returns the routed handler wrapped in request logging and recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+s.cfg.PublishPath, s.handlePublish)
	mux.HandleFunc("GET /feed/{channelID}", s.handleFeed)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.webhook != nil {
		mux.Handle("POST "+s.cfg.WebhookPath, s.webhook)
	}

	handler := sloghttp.Recovery(mux)
	return sloghttp.New(s.logger)(handler)
}

// Start starts the HTTP server and blocks until it is shut down. Mount the
// webhook before calling it. A Shutdown that comes first makes Start return nil.
func (s *Server) Start() error {
	s.logger.Info("Gateway starting", "addr", s.server.Addr, "publish_path", s.cfg.PublishPath)

	s.server.Handler = s.Handler()
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return oops.With("addr", s.server.Addr).Wrap(err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight publishes.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.publishes.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown timed out waiting for publishes")
	}
	return err
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody)).Decode(&req); err != nil {
		s.logger.Debug("Rejected publish payload", "error", errors.Validation(err))
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	channelID := strings.TrimSpace(req.ChannelID)
	if channelID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "channelId and message are required")
		return
	}

	channel, ok := s.channelService.Get(channelID)
	if !ok {
		s.logger.Info("Publish to unknown channel", "channel_id", channelID)
		writeJSON(w, http.StatusOK, publishResponse{Status: "ok", Delivered: false})
		return
	}

	if err := s.feedService.Record(channel.ID(), req.Message); err != nil {
		s.logger.Warn("Failed to record publish", "channel_id", channel.ID(), "error", err)
	}

	// Fan-out outlives the request; Shutdown waits for it.
	s.publishes.Add(1)
	go func() {
		defer s.publishes.Done()
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("panic recovered during publish", slog.String("channel_id", channel.ID()),
					slog.Any("panic", p), slog.String("stack", string(debug.Stack())))
			}
		}()
		channel.Publish(context.WithoutCancel(r.Context()), req.Message)
	}()

	writeJSON(w, http.StatusOK, publishResponse{Status: "ok", Delivered: true})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelID")

	baseURL := fmt.Sprintf("%s://%s", getScheme(r), r.Host)

	feed, err := s.feedService.GenerateFeed(channelID, baseURL)
	if stderrors.Is(err, errors.ErrNotFound) {
		http.Error(w, "Channel not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Error generating feed", "channel_id", channelID, "error", err)
		http.Error(w, "Failed to generate feed", http.StatusInternalServerError)
		return
	}

	rss, err := feed.ToRss()
	if err != nil {
		s.logger.Error("Error converting feed to RSS", "error", err)
		http.Error(w, "Failed to generate RSS", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rss))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"channels": len(s.channelService.IDs()),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
