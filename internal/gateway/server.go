// Package gateway exposes the local HTTP and websocket surface: status,
// outbound sends, history reads, and a live fan-out of ingested messages.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wabridge/internal/bus"
	"github.com/matheus3301/wabridge/internal/status"
	"github.com/matheus3301/wabridge/internal/store"
	"go.uber.org/zap"
)

// Sender dispatches an outbound text message and returns the provider's
// message id.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) (string, error)
}

// Server is the authenticated local API.
type Server struct {
	db      *store.DB
	machine *status.Machine
	sender  Sender
	hub     *Hub
	logger  *zap.Logger

	srv *http.Server
}

// NewServer builds the server and its routes. All routes, including the
// websocket endpoint, sit behind bearer auth.
func NewServer(port int, secret string, db *store.DB, machine *status.Machine, sender Sender, b *bus.Bus, logger *zap.Logger) *Server {
	s := &Server{
		db:      db,
		machine: machine,
		sender:  sender,
		hub:     NewHub(b, logger),
		logger:  logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(Auth(secret))

	router.GET("/status", s.handleStatus)
	router.POST("/send-message", s.handleSendMessage)
	router.GET("/chats", s.handleListChats)
	router.GET("/chats/:chatId/messages", s.handleListMessages)
	router.GET("/contacts", s.handleListContacts)
	router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWS(c.Writer, c.Request)
	})

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	return s
}

// Hub returns the websocket hub so the caller can run its forwarding loop.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves until the listener is closed. It blocks.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	return s.srv.Shutdown(ctx)
}
