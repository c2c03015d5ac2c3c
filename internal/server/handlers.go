package server

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schoolchat/internal/auth"
	"schoolchat/internal/history"
	"schoolchat/internal/kb"
	"schoolchat/internal/models"
	"schoolchat/internal/responder"
	"schoolchat/internal/worker"
)

// Handler wires the chat API routes to the retrieval/generation pipeline.
type Handler struct {
	auth         *auth.Service
	history      *history.Service
	kb           *kb.Index
	responder    *responder.Service
	dispatcher   *worker.Dispatcher
	links        *kb.LinkSigner
	authRequired bool
	maxResults   int
}

// NewHandler constructs a Handler instance.
func NewHandler(authService *auth.Service, historyService *history.Service, index *kb.Index, resp *responder.Service, dispatcher *worker.Dispatcher, links *kb.LinkSigner, authRequired bool, maxResults int) *Handler {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Handler{
		auth:         authService,
		history:      historyService,
		kb:           index,
		responder:    resp,
		dispatcher:   dispatcher,
		links:        links,
		authRequired: authRequired,
		maxResults:   maxResults,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.handleHealth)
	router.POST("/auth/register", h.handleRegister)
	router.POST("/auth/login", h.handleLogin)
	router.GET("/auth/me", h.auth.Middleware(), h.handleMe)
	// Document links carry their own signature; no bearer needed.
	router.GET("/documents/:source_id", h.handleDocument)

	chatRoutes := router.Group("")
	if h.authRequired {
		chatRoutes.Use(h.auth.Middleware())
	}
	chatRoutes.POST("/chat", h.handleChat)
	chatRoutes.GET("/sources/:source_id", h.handleSource)
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "success": false})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is missing", "success": false})
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	started := time.Now()
	var out models.ChatResponse
	err := h.dispatcher.Do(c.Request.Context(), sessionID, func(ctx context.Context) error {
		out = h.processChat(ctx, message, sessionID, started)
		return nil
	})
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "success": false})
		}
		return
	}
	c.JSON(http.StatusOK, out)
}

// processChat runs the full pipeline for one message: classify, guard,
// retrieve, generate, persist. Pipeline failures collapse into the fixed
// apology response rather than an HTTP error.
func (h *Handler) processChat(ctx context.Context, message, sessionID string, started time.Time) models.ChatResponse {
	queryType := h.responder.Classify(ctx, message)

	if !h.responder.Allow(message) {
		h.record(ctx, sessionID, message, responder.BlockedText, responder.QueryBlocked, 0)
		return models.ChatResponse{
			Success:      false,
			Response:     responder.BlockedText,
			SessionID:    sessionID,
			QueryType:    responder.QueryBlocked,
			ResponseTime: elapsedSeconds(started),
		}
	}

	var chunks []kb.Result
	var sources []models.Source
	if queryType == responder.QueryKnowledgeBase && h.kb != nil {
		var err error
		chunks, err = h.kb.Query(ctx, message, h.maxResults)
		if err != nil {
			log.Printf("knowledge base query failed: %v", err)
			chunks = nil
		}
		sources = h.buildSources(chunks)
	}

	recent, err := h.history.Recent(ctx, sessionID, history.DefaultRecentLimit)
	if err != nil {
		log.Printf("load history for %s failed: %v", sessionID, err)
		recent = nil
	}

	answer, err := h.responder.Respond(ctx, responder.Request{
		Message:   message,
		QueryType: queryType,
		Exchanges: recent,
		Chunks:    chunks,
	})
	if err != nil {
		log.Printf("respond for %s failed: %v", sessionID, err)
		h.record(ctx, sessionID, message, responder.ErrorText, responder.QueryError, 0)
		return models.ChatResponse{
			Success:      false,
			Response:     responder.ErrorText,
			SessionID:    sessionID,
			QueryType:    responder.QueryError,
			ResponseTime: elapsedSeconds(started),
		}
	}

	responseTime := elapsedSeconds(started)
	h.record(ctx, sessionID, message, answer, queryType, responseTime)
	return models.ChatResponse{
		Success:      true,
		Response:     answer,
		SessionID:    sessionID,
		QueryType:    queryType,
		ResponseTime: responseTime,
		Sources:      sources,
	}
}

// record persists the exchange; persistence failures are logged, never
// surfaced to the user.
func (h *Handler) record(ctx context.Context, sessionID, userMessage, assistantText, queryType string, responseTime float64) {
	_, err := h.history.Record(ctx, models.Exchange{
		SessionID:     sessionID,
		UserMessage:   userMessage,
		AssistantText: assistantText,
		QueryType:     queryType,
		ResponseTime:  responseTime,
	})
	if err != nil {
		log.Printf("record exchange for %s failed: %v", sessionID, err)
	}
}

func (h *Handler) buildSources(chunks []kb.Result) []models.Source {
	seen := make(map[string]bool, len(chunks))
	var sources []models.Source
	now := time.Now()
	for _, chunk := range chunks {
		if chunk.SourceID == "" || seen[chunk.SourceID] {
			continue
		}
		seen[chunk.SourceID] = true
		presigned := ""
		if h.links != nil {
			presigned, _ = h.links.Sign(chunk.SourceID, now)
		}
		sources = append(sources, models.Source{
			SourceID:     chunk.SourceID,
			Filename:     chunk.Filename,
			URL:          chunk.URL,
			Location:     chunk.Path,
			PresignedURL: presigned,
		})
	}
	return sources
}

func (h *Handler) handleSource(c *gin.Context) {
	sourceID := c.Param("source_id")
	if h.kb == nil || h.links == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	if _, ok := h.kb.Source(sourceID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	presigned, expiresAt := h.links.Sign(sourceID, time.Now())
	c.JSON(http.StatusOK, models.SourceURLResponse{
		PresignedURL: presigned,
		ExpiresAt:    expiresAt,
	})
}

func (h *Handler) handleDocument(c *gin.Context) {
	sourceID := c.Param("source_id")
	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid link"})
		return
	}
	if h.links == nil || h.kb == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	if err := h.links.Verify(sourceID, expires, c.Query("token"), time.Now()); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	info, ok := h.kb.Source(sourceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	c.File(info.Path)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, expiresAt, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"auth_token": token,
		"expires_at": expiresAt,
	})
}

func (h *Handler) handleMe(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	username, err := h.auth.Username(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "username": username})
}

func elapsedSeconds(started time.Time) float64 {
	return math.Round(time.Since(started).Seconds()*100) / 100
}
