package gateway

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wabridge/internal/store"
	"go.uber.org/zap"
)

type sendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "running",
		"whatsAppClientReady": s.machine.IsReady(),
	})
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ChatID == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatId and message are required"})
		return
	}

	if !s.machine.IsReady() {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "whatsapp client not ready",
		})
		return
	}

	msgID, err := s.sender.SendText(c.Request.Context(), req.ChatID, req.Message)
	if err != nil {
		s.logger.Error("send failed", zap.Error(err), zap.String("chat_id", req.ChatID))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"messageId": msgID,
	})
}

func (s *Server) handleListChats(c *gin.Context) {
	chats, err := s.db.ListChats()
	if err != nil {
		s.logger.Error("failed to list chats", zap.Error(err))
		chats = nil
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	c.JSON(http.StatusOK, chats)
}

func (s *Server) handleListMessages(c *gin.Context) {
	chatID := c.Param("chatId")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		limit = store.DefaultMessageLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		offset = 0
	}

	msgs, err := s.db.ListMessagesByChat(chatID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list messages", zap.Error(err), zap.String("chat_id", chatID))
		msgs = nil
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleListContacts(c *gin.Context) {
	contacts, err := s.db.ListContacts()
	if err != nil {
		s.logger.Error("failed to list contacts", zap.Error(err))
		contacts = nil
	}
	if contacts == nil {
		contacts = []store.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}
