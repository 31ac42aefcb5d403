package http

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"classifier-api/internal/classify"
	"classifier-api/internal/domain"
	"classifier-api/internal/repository"
	"classifier-api/internal/service"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users    service.UserService
	classify *classify.Service
	logger   *logrus.Logger
}

func NewHandler(users service.UserService, classifySvc *classify.Service, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		users:    users,
		classify: classifySvc,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine, authGate gin.HandlerFunc) {
	router.Use(corsMiddleware())

	api := router.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.register)
			authGroup.POST("/login", h.login)

			protected := authGroup.Group("", authGate)
			{
				protected.GET("/profile", h.getProfile)
				protected.PUT("/profile", h.updateProfile)
				protected.DELETE("/profile", h.deactivate)
				protected.POST("/change-password", h.changePassword)
				protected.POST("/regenerate-api-key", h.regenerateAPIKey)
				protected.GET("/stats", h.getStats)
				protected.GET("/admin/stats", h.getAggregateStats)
			}
		}

		classifyGroup := api.Group("/classify")
		{
			classifyGroup.GET("/status", h.classifyStatus)

			protected := classifyGroup.Group("", authGate)
			{
				protected.POST("/image", h.classifyImage)
				protected.GET("/archive", h.listArchive)
				protected.DELETE("/archive", h.purgeArchive)
			}
		}
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type classifyRequest struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "message": err.Error()})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"email": domain.NormalizeEmail(req.Email),
		"ip":    c.ClientIP(),
	}).Info("register attempt")

	result, err := h.users.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "user registered successfully",
		"user":      userToResponse(result.User),
		"token":     result.Token,
		"expiresIn": result.ExpiresIn.String(),
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "message": err.Error()})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"email": domain.NormalizeEmail(req.Email),
		"ip":    c.ClientIP(),
	}).Info("login attempt")

	result, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "login successful",
		"user":      userToResponse(result.User),
		"token":     result.Token,
		"expiresIn": result.ExpiresIn.String(),
	})
}

func (h *Handler) getProfile(c *gin.Context) {
	user, err := h.users.GetProfile(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userToResponse(user)})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "message": err.Error()})
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), currentUserID(c), req.Name, req.Email)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userToResponse(user)})
}

func (h *Handler) deactivate(c *gin.Context) {
	if err := h.users.Deactivate(c.Request.Context(), currentUserID(c)); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account deactivated"})
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "message": err.Error()})
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), currentUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
}

func (h *Handler) regenerateAPIKey(c *gin.Context) {
	apiKey, err := h.users.RegenerateAPIKey(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"apiKey":  apiKey,
		"message": "store this key now; it is only shown in full once",
	})
}

func (h *Handler) getStats(c *gin.Context) {
	stats, err := h.users.GetStats(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	resp := gin.H{
		"id":        stats.ID,
		"name":      stats.Name,
		"createdAt": stats.CreatedAt.Format(time.RFC3339),
	}
	if stats.LastLoginAt != nil {
		resp["lastLoginAt"] = stats.LastLoginAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, gin.H{"stats": resp})
}

func (h *Handler) getAggregateStats(c *gin.Context) {
	stats, err := h.users.GetAggregateStats(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats": gin.H{
			"totalUsers":       stats.TotalUsers,
			"activeUsers":      stats.ActiveUsers,
			"activeLast30Days": stats.ActiveLast30Days,
			"newLast7Days":     stats.NewLast7Days,
		},
	})
}

func (h *Handler) classifyImage(c *gin.Context) {
	if h.classify == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "classification service not configured"})
		return
	}

	imageBase64, prompt, err := extractImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image data", "message": err.Error()})
		return
	}

	result, err := h.classify.ClassifyImage(c.Request.Context(), currentUserID(c), imageBase64, prompt)
	if err != nil {
		switch {
		case errors.Is(err, classify.ErrInvalidImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image data", "message": err.Error()})
		case errors.Is(err, classify.ErrTimeout):
			c.JSON(http.StatusRequestTimeout, gin.H{
				"error":   "request timeout",
				"message": "image processing took too long, try with a smaller image",
			})
		case errors.Is(err, classify.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "service unavailable",
				"message": "inference service is not available",
			})
		default:
			h.logger.Errorf("classify image: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	resp := gin.H{
		"classification": result.Classification,
		"model":          result.Model,
		"prompt":         result.Prompt,
		"processingTime": result.ProcessingTime.String(),
		"imageSize":      result.ImageSize,
	}
	if result.ArchiveLocation != "" {
		resp["archiveLocation"] = result.ArchiveLocation
	}
	c.JSON(http.StatusOK, gin.H{"result": resp})
}

func (h *Handler) classifyStatus(c *gin.Context) {
	if h.classify == nil {
		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
		return
	}

	status := h.classify.Status(c.Request.Context())
	state := "degraded"
	if status.ServiceAvailable && status.ModelAvailable {
		state = "healthy"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": state,
		"service": gin.H{
			"available": status.ServiceAvailable,
			"url":       status.URL,
		},
		"model": gin.H{
			"name":      status.Model,
			"available": status.ModelAvailable,
		},
	})
}

func (h *Handler) listArchive(c *gin.Context) {
	if h.classify == nil {
		c.JSON(http.StatusOK, gin.H{"objects": []any{}})
		return
	}

	objects, err := h.classify.ListArchive(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Errorf("list archive: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		entry := gin.H{"key": obj.Key, "size": obj.Size}
		if obj.LastModified != nil && !obj.LastModified.IsZero() {
			entry["lastModified"] = obj.LastModified.Format(time.RFC3339)
		}
		resp = append(resp, entry)
	}
	c.JSON(http.StatusOK, gin.H{"objects": resp})
}

func (h *Handler) purgeArchive(c *gin.Context) {
	if h.classify == nil {
		c.JSON(http.StatusOK, gin.H{"message": "archive is empty"})
		return
	}

	if err := h.classify.PurgeArchive(c.Request.Context(), currentUserID(c)); err != nil {
		h.logger.Errorf("purge archive: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "archive purged"})
}

// extractImage accepts either a multipart upload under the "image" field or
// a JSON body with a base64 image string.
func extractImage(c *gin.Context) (imageBase64, prompt string, err error) {
	if file, fileErr := c.FormFile("image"); fileErr == nil {
		f, err := file.Open()
		if err != nil {
			return "", "", err
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, 10*1024*1024+1))
		if err != nil {
			return "", "", err
		}
		return base64.StdEncoding.EncodeToString(data), c.PostForm("prompt"), nil
	}

	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", "", err
	}
	return req.Image, req.Prompt, nil
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "message": err.Error()})
	case errors.Is(err, repository.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "user already exists",
			"message": "a user with this email already exists",
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid credentials",
			"message": "email or password is incorrect",
		})
	case errors.Is(err, service.ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid password",
			"message": "current password is incorrect",
		})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "user not found",
			"message": "user profile could not be found",
		})
	default:
		h.logger.Errorf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// UserResponse is the safe external view of an identity: the password hash
// never appears here.
type UserResponse struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	Role        string  `json:"role"`
	APIKey      string  `json:"apiKey,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	LastLoginAt *string `json:"lastLoginAt,omitempty"`
	IsActive    bool    `json:"isActive"`
}

func userToResponse(user *domain.User) UserResponse {
	resp := UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		APIKey:    user.APIKey,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
		IsActive:  user.IsActive,
	}
	if user.LastLoginAt != nil {
		v := user.LastLoginAt.Format(time.RFC3339)
		resp.LastLoginAt = &v
	}
	return resp
}
