package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memodraft/internal/auth"
	"memodraft/internal/config"
	"memodraft/internal/documents"
	"memodraft/internal/service/ai"
	"memodraft/internal/service/assistant"
	"memodraft/internal/worker"
)

const sessionContextKey = "assistant_session"

// Handler wires HTTP routes to the assistant service.
type Handler struct {
	assistant *assistant.Service
	auth      *auth.Service
	upload    config.UploadConfig
	log       *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, authService *auth.Service, upload config.UploadConfig, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if upload.MaxFileBytes <= 0 {
		upload.MaxFileBytes = 10 << 20
	}
	if upload.MaxFiles <= 0 {
		upload.MaxFiles = 20
	}
	return &Handler{
		assistant: service,
		auth:      authService,
		upload:    upload,
		log:       log.With(zap.String("component", "api")),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/login", h.login)
	api.GET("/sections", h.listSections)

	sess := api.Group("/session")
	sess.Use(h.auth.Middleware(), h.auth.CSRFMiddleware(), h.requireSession())
	sess.GET("", h.getSnapshot)
	sess.POST("/logout", h.logout)
	sess.POST("/documents", h.uploadDocuments)
	sess.POST("/sections/generate", h.generateSection)
	sess.POST("/messages", h.sendMessage)
	sess.POST("/memo/insert", h.insertSuggestion)
	sess.PUT("/memo", h.editMemo)
	sess.GET("/context-guide", h.getContextGuide)
	sess.PUT("/context-guide", h.setContextGuide)
	sess.POST("/upgrade", h.upgrade)
	sess.POST("/upgrade-prompt", h.openUpgradePrompt)
	sess.POST("/upgrade-prompt/dismiss", h.dismissUpgradePrompt)
}

// requireSession resolves the session bound to the request token.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.SessionIDFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "You must be logged in."})
			return
		}
		sess, err := h.assistant.Lookup(id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired, please log in again"})
			return
		}
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *assistant.Session {
	sess, _ := c.MustGet(sessionContextKey).(*assistant.Session)
	return sess
}

type loginRequest struct {
	Provider    string `json:"provider"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	switch provider {
	case "":
		provider = "google"
	case "google", "facebook":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider must be google or facebook"})
		return
	}
	sess, token, err := h.assistant.Login(c.Request.Context(), provider, req.DisplayName)
	if err != nil {
		h.log.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if err := h.auth.SetAuthCookies(c, token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auth_token": token,
		"session":    sess.Snapshot(),
	})
}

func (h *Handler) listSections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sections": assistant.Sections()})
}

func (h *Handler) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"session": currentSession(c).Snapshot()})
}

func (h *Handler) logout(c *gin.Context) {
	sess := currentSession(c)
	if err := h.assistant.Logout(c.Request.Context(), sess.ID()); err != nil && !errors.Is(err, assistant.ErrAuthRequired) {
		h.log.Warn("logout", zap.String("session", sess.ID()), zap.Error(err))
	}
	h.auth.ClearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) uploadDocuments(c *gin.Context) {
	sess := currentSession(c)
	limit := h.upload.MaxFileBytes * int64(h.upload.MaxFiles)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "files are required"})
		return
	}
	if len(files) > h.upload.MaxFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many files"})
		return
	}
	sources := make([]documents.Source, 0, len(files))
	for _, fh := range files {
		if fh.Size > h.upload.MaxFileBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large: " + fh.Filename})
			return
		}
		sources = append(sources, documents.FromFileHeader(fh))
	}

	docs, err := sess.Upload(c.Request.Context(), sources)
	if err != nil {
		h.writeError(c, sess, err)
		return
	}
	added := make([]assistant.DocumentInfo, len(docs))
	for i, d := range docs {
		added[i] = assistant.DocumentInfo{Name: d.Name, MimeType: d.MimeType, Size: d.Size}
	}
	c.JSON(http.StatusCreated, gin.H{
		"documents": added,
		"session":   sess.Snapshot(),
	})
}

type generateRequest struct {
	SectionID string `json:"section_id"`
	Title     string `json:"title"`
}

func (h *Handler) generateSection(c *gin.Context) {
	sess := currentSession(c)
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ref := req.SectionID
	if ref == "" {
		ref = req.Title
	}
	text, err := sess.GenerateSection(c.Request.Context(), ref)
	if err != nil {
		h.writeError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"suggestion": text,
		"session":    sess.Snapshot(),
	})
}

type messageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	sess := currentSession(c)
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reply, err := sess.SendMessage(c.Request.Context(), req.Content)
	if err != nil {
		h.writeError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reply":   reply,
		"session": sess.Snapshot(),
	})
}

type insertRequest struct {
	TurnIndex *int   `json:"turn_index"`
	Text      string `json:"text"`
}

func (h *Handler) insertSuggestion(c *gin.Context) {
	sess := currentSession(c)
	var req insertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var memoText string
	if req.TurnIndex != nil {
		var err error
		memoText, err = sess.InsertSuggestion(*req.TurnIndex)
		if err != nil {
			h.writeError(c, sess, err)
			return
		}
	} else {
		if strings.TrimSpace(req.Text) == "" {
			h.writeError(c, sess, assistant.ErrEmptyInput)
			return
		}
		memoText = sess.InsertText(req.Text)
	}
	c.JSON(http.StatusOK, gin.H{"memo": memoText})
}

type contentRequest struct {
	Content *string `json:"content"`
}

func (h *Handler) editMemo(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	sess := currentSession(c)
	sess.EditMemo(*req.Content)
	c.JSON(http.StatusOK, gin.H{"memo": sess.Memo()})
}

func (h *Handler) getContextGuide(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"content": currentSession(c).ContextGuide()})
}

func (h *Handler) setContextGuide(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	sess := currentSession(c)
	sess.SetContextGuide(*req.Content)
	c.JSON(http.StatusOK, gin.H{"content": sess.ContextGuide()})
}

func (h *Handler) upgrade(c *gin.Context) {
	sess := currentSession(c)
	if err := sess.Upgrade(); err != nil {
		h.writeError(c, sess, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess.Snapshot()})
}

func (h *Handler) openUpgradePrompt(c *gin.Context) {
	sess := currentSession(c)
	sess.OpenUpgradePrompt()
	c.JSON(http.StatusOK, gin.H{"session": sess.Snapshot()})
}

func (h *Handler) dismissUpgradePrompt(c *gin.Context) {
	sess := currentSession(c)
	sess.DismissUpgradePrompt()
	c.JSON(http.StatusOK, gin.H{"session": sess.Snapshot()})
}

// writeError maps the assistant error taxonomy onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, sess *assistant.Session, err error) {
	status := statusFor(err)
	snap := sess.Snapshot()
	msg := err.Error()
	if snap.Error != "" && !errors.Is(err, assistant.ErrNotInsertable) && !errors.Is(err, assistant.ErrEmptyInput) {
		msg = snap.Error
	}
	body := gin.H{"error": msg, "session": snap}
	var quotaErr *assistant.QuotaExceededError
	if errors.As(err, &quotaErr) {
		body["upgrade_prompt"] = true
	}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	var (
		quotaErr  *assistant.QuotaExceededError
		ingestErr *documents.IngestError
		gwErr     *ai.GatewayError
	)
	switch {
	case errors.Is(err, assistant.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.As(err, &quotaErr):
		return http.StatusPaymentRequired
	case errors.Is(err, assistant.ErrNoDocuments),
		errors.Is(err, assistant.ErrNotInsertable),
		errors.Is(err, assistant.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrRequestInFlight):
		return http.StatusConflict
	case errors.As(err, &ingestErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, worker.ErrDispatcherBusy):
		return http.StatusTooManyRequests
	case errors.As(err, &gwErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
