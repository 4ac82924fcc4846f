package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"relay-chat/internal/domain"
	"relay-chat/internal/llm"
	"relay-chat/internal/repository"
)

// ChatHandler mantiene dependencias para el relay de streaming y el CRUD de
// transcripts.
type ChatHandler struct {
	logger    *zap.Logger
	chats     repository.ChatRepository
	llmClient llm.Client
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, chats repository.ChatRepository, llmClient llm.Client) *ChatHandler {
	return &ChatHandler{
		logger:    logger,
		chats:     chats,
		llmClient: llmClient,
	}
}

type chatMessageReq struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// StreamChat maneja POST /api/chat: normaliza la respuesta del proveedor en
// frames SSE incrementales rematados por un marcador de fin. Usable anónimo.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req struct {
		Messages []chatMessageReq `json:"messages" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	// Errores de configuración o de upstream se reportan como respuesta única
	// antes de comprometer headers; después solo queda cortar el stream.
	stream, err := h.llmClient.StreamChat(c.Request.Context(), messages)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			h.logger.Error("llm credentials missing")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "llm not configured"})
			return
		}
		h.logger.Error("llm stream open failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream error"})
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		chunk, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Warn("llm stream aborted", zap.Error(err))
				return false
			}
			c.SSEvent("message", "[DONE]")
			return false
		}
		c.SSEvent("message", gin.H{"content": chunk})
		return true
	})
}

// CreateChat maneja POST /api/chats.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req struct {
		Title    string           `json:"title"`
		Messages []chatMessageReq `json:"messages"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New chat"
	}
	msgs := make([]domain.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}

	now := time.Now().UTC()
	chat := domain.Chat{
		ID:        uuid.NewString(),
		UserID:    claims.UserID,
		Title:     title,
		Messages:  msgs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.chats.Create(c.Request.Context(), chat); err != nil {
		h.logger.Error("create chat failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// ListChats maneja GET /api/chats.
func (h *ChatHandler) ListChats(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	chats, err := h.chats.ListByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("list chats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChat maneja GET /api/chats/:id.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// DeleteChat maneja DELETE /api/chats/:id.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}
	if err := h.chats.Delete(c.Request.Context(), chat.ID); err != nil {
		h.logger.Error("delete chat failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// AppendMessage maneja POST /api/chats/:id/messages: agrega el turno del
// usuario, completa con el relay (drenado, sin streaming) y persiste ambos.
func (h *ChatHandler) AppendMessage(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid append message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	chat.Messages = append(chat.Messages, domain.ChatMessage{Role: "user", Content: req.Content})

	history := make([]llm.Message, 0, len(chat.Messages))
	for _, m := range chat.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	stream, err := h.llmClient.StreamChat(c.Request.Context(), history)
	if err != nil {
		h.logger.Error("llm completion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream error"})
		return
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.logger.Error("llm completion aborted", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream error"})
			return
		}
		reply.WriteString(chunk)
	}

	assistant := domain.ChatMessage{Role: "assistant", Content: reply.String()}
	chat.Messages = append(chat.Messages, assistant)
	if err := h.chats.UpdateMessages(c.Request.Context(), chat.ID, chat.Messages); err != nil {
		h.logger.Error("persist chat failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save chat"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": chat, "reply": assistant})
}

// ownedChat carga el chat del path y verifica pertenencia. Un chat ajeno se
// reporta como inexistente.
func (h *ChatHandler) ownedChat(c *gin.Context) (domain.Chat, bool) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return domain.Chat{}, false
	}
	chat, err := h.chats.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return domain.Chat{}, false
		}
		h.logger.Error("load chat failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load chat"})
		return domain.Chat{}, false
	}
	if chat.UserID != claims.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return domain.Chat{}, false
	}
	return chat, true
}
