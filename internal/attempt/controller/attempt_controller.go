package controller

import (
	"net/http"
	"time"

	"codearena/internal/attempt/model"
	"codearena/internal/attempt/service"
	execmodel "codearena/internal/execution/model"
	"codearena/pkg/utils/logger"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	watchWriteWait  = 10 * time.Second
	watchPongWait   = 60 * time.Second
	watchPingPeriod = watchPongWait * 9 / 10
)

// AttemptController handles attempt HTTP endpoints.
type AttemptController struct {
	attemptService *service.AttemptService
	upgrader       websocket.Upgrader
}

// Option customizes an AttemptController.
type Option func(*AttemptController)

// WithOriginCheck decides which origins may open a watch stream.
// Without it only same-host origins are accepted.
func WithOriginCheck(check func(*http.Request) bool) Option {
	return func(h *AttemptController) {
		h.upgrader.CheckOrigin = check
	}
}

// NewAttemptController creates a new AttemptController.
func NewAttemptController(attemptService *service.AttemptService, opts ...Option) *AttemptController {
	h := &AttemptController{
		attemptService: attemptService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the attempt API on group.
// runGuards run before the handlers that start grading work.
func (h *AttemptController) RegisterRoutes(group *gin.RouterGroup, runGuards ...gin.HandlerFunc) {
	group.GET("/languages", h.Languages)
	group.GET("/attempts", h.List)
	group.POST("/attempts", h.Create)
	group.GET("/attempts/:id", h.Get)
	group.POST("/attempts/:id/tests", withGuards(runGuards, h.RunTests)...)
	group.POST("/attempts/:id/submissions", withGuards(runGuards, h.Submit)...)
	group.POST("/attempts/:id/reset", h.Reset)
	group.GET("/attempts/:id/watch", h.Watch)
}

func withGuards(guards []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(guards)+1)
	chain = append(chain, guards...)
	return append(chain, handler)
}

// Languages lists supported languages.
func (h *AttemptController) Languages(c *gin.Context) {
	langs := h.attemptService.Languages()
	items := make([]LanguageResponse, 0, len(langs))
	for _, l := range langs {
		items = append(items, toLanguageResponse(l))
	}
	response.Success(c, items)
}

// Create starts a new attempt.
func (h *AttemptController) Create(c *gin.Context) {
	var req CreateAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	obs, err := h.attemptService.Create(c.Request.Context(), req.ChallengeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, obs.Redacted())
}

// Get returns the latest observation of one attempt.
func (h *AttemptController) Get(c *gin.Context) {
	obs, err := h.attemptService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, obs.Redacted())
}

// List returns the calling team's attempts.
func (h *AttemptController) List(c *gin.Context) {
	list, err := h.attemptService.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]model.Observation, 0, len(list))
	for _, obs := range list {
		items = append(items, obs.Redacted())
	}
	response.Success(c, items)
}

// RunTests starts a test run; the verdict is observed through Get or Watch.
func (h *AttemptController) RunTests(c *gin.Context) {
	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	obs, err := h.attemptService.RunTests(c.Request.Context(), c.Param("id"), req.SourceCode, req.Language)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusAccepted, obs.Redacted())
}

// Submit starts a formal submission.
func (h *AttemptController) Submit(c *gin.Context) {
	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	obs, err := h.attemptService.Submit(c.Request.Context(), c.Param("id"), req.SourceCode, req.Language)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusAccepted, obs.Redacted())
}

// Reset starts the attempt over.
func (h *AttemptController) Reset(c *gin.Context) {
	obs, err := h.attemptService.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, obs.Redacted())
}

// Watch streams observations over a websocket until either side closes.
func (h *AttemptController) Watch(c *gin.Context) {
	ctx := c.Request.Context()
	updates, cancel, err := h.attemptService.Watch(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(watchPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(watchPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case obs, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(obs.Redacted()); err != nil {
				logger.Debug(ctx, "watch write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// CreateAttemptRequest defines the create payload.
type CreateAttemptRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
}

// SourceRequest defines the test run and submission payload.
type SourceRequest struct {
	SourceCode string `json:"source_code"`
	Language   string `json:"language" binding:"required"`
}

// LanguageResponse defines one catalog entry.
type LanguageResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	ID          int    `json:"id"`
}

func toLanguageResponse(l execmodel.Language) LanguageResponse {
	return LanguageResponse{Name: l.Name, DisplayName: l.DisplayName, ID: l.ID}
}
