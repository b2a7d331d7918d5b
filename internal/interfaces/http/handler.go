package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insightdash/internal/classifier"
	"insightdash/internal/gateway"
	"insightdash/internal/session"
	"insightdash/internal/usecases"
)

type Handler struct {
	analysis *usecases.AnalysisUsecase
	gw       *gateway.Client
	sessions *session.Manager
	segments *usecases.SegmentMessenger
	ranges   *classifier.Store
}

func NewHandler(analysis *usecases.AnalysisUsecase, gw *gateway.Client, sessions *session.Manager, segments *usecases.SegmentMessenger, ranges *classifier.Store) *Handler {
	return &Handler{
		analysis: analysis,
		gw:       gw,
		sessions: sessions,
		segments: segments,
		ranges:   ranges,
	}
}

func SetupRoutes(r *gin.Engine, h *Handler, middleware *Middleware) {
	// Apply Security Middleware
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20)) // 1MB max request size
	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public Auth Routes
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/register", h.Register)
	}

	// Protected Routes
	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerUser(5, 10))
	{
		api.GET("/customers", h.Customers)

		// Analysis Routes
		api.GET("/analysis/frequency", h.FrequencyBuckets)
		api.GET("/analysis/spending", h.SpendingBuckets)
		api.GET("/analysis/series", h.Series)
		api.GET("/analysis/ranges/:metric", h.GetRanges)
		api.PUT("/analysis/ranges/:metric/:cohort", h.SetRangeBound)
		api.POST("/analysis/ranges/:metric/reorder", h.ReorderRanges)
		api.POST("/analysis/ranges/:metric/reset", h.ResetRanges)

		// Conversation Routes
		api.POST("/conversations/:phone/open", h.OpenConversation)
		api.GET("/conversations/:phone/messages", h.ConversationMessages)
		api.POST("/conversations/:phone/send", h.SendMessage)
		api.DELETE("/conversations/:phone", h.CloseConversation)

		// Segment Routes
		api.POST("/segments/send", h.SendToSegment)
	}
}

func (h *Handler) Login(c *gin.Context) {
	var loginReq struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	token, err := h.gw.Login(c.Request.Context(), loginReq.Email, loginReq.Password)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Login unavailable"})
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) Register(c *gin.Context) {
	var reg gateway.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if reg.Email == "" || len(reg.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password (min 6 chars) required"})
		return
	}
	if reg.Password != reg.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Passwords do not match"})
		return
	}
	token, err := h.gw.Register(c.Request.Context(), reg)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthenticated) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Registration unavailable"})
		return
	}
	c.JSON(http.StatusCreated, token)
}
