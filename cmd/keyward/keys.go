package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/keyward/internal/auth/apikey"
	"github.com/vyrodovalexey/keyward/internal/observability"
)

// permissionAdmin guards the key management routes.
const permissionAdmin = "admin"

// createKeyRequest is the body of POST /v1/keys. Without permissions the
// configured defaults apply; without expiresInDays the key never expires.
type createKeyRequest struct {
	Name          string   `json:"name"`
	Permissions   []string `json:"permissions"`
	ExpiresInDays *int     `json:"expiresInDays"`
}

// keysHandler serves key management over HTTP. It goes through the running
// manager so revocations take effect immediately and are not overwritten
// by the next usage statistics save.
type keysHandler struct {
	manager *apikey.Manager
	logger  observability.Logger
}

func (h *keysHandler) register(group *gin.RouterGroup, require gin.HandlerFunc) {
	keys := group.Group("/keys", require)
	keys.GET("", h.list)
	keys.POST("", h.create)
	keys.GET("/:id", h.show)
	keys.DELETE("/:id", h.revoke)
}

func (h *keysHandler) list(c *gin.Context) {
	keys := h.manager.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"api_keys": keys, "total": len(keys)})
}

func (h *keysHandler) create(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	var opts []apikey.GenerateOption
	if req.ExpiresInDays != nil {
		if *req.ExpiresInDays <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expiresInDays must be positive"})
			return
		}
		opts = append(opts, apikey.WithExpiresInDays(*req.ExpiresInDays))
	}

	key, err := h.manager.Generate(c.Request.Context(), req.Name, req.Permissions, opts...)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to create api key", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create api key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "API key created; store it now, it is not shown again",
		"key_info": key,
	})
}

func (h *keysHandler) show(c *gin.Context) {
	info, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, apikey.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "api key not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read api key"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *keysHandler) revoke(c *gin.Context) {
	id := c.Param("id")
	existed, err := h.manager.Revoke(c.Request.Context(), id)
	switch {
	case err != nil:
		h.logger.WithContext(c.Request.Context()).Error("failed to revoke api key",
			observability.String("key_id", id),
			observability.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke api key"})
	case !existed:
		c.JSON(http.StatusNotFound, gin.H{"error": "api key not found"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "api key revoked", "id": id})
	}
}
