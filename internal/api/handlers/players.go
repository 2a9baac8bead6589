package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/playmatatu/battlerelay/internal/lobby"
	"github.com/playmatatu/battlerelay/internal/store"
)

// playerID reads :userId and answers 400 when it is blank.
func playerID(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return "", false
	}
	return userID, true
}

type updateProfileRequest struct {
	Username       string          `json:"username"`
	Appearance     json.RawMessage `json:"appearance"`
	EvolutionLevel *int            `json:"evolutionLevel" binding:"omitempty,min=0"`
}

// GetPlayerProfile returns the stored profile for :userId.
func GetPlayerProfile(gw store.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := playerID(c)
		if !ok {
			return
		}

		p, err := gw.GetProfile(c.Request.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
			return
		}
		if err != nil {
			logger.Error("get profile", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load player"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// UpdatePlayerProfile upserts the profile for :userId and returns it.
func UpdatePlayerProfile(gw store.Gateway, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := playerID(c)
		if !ok {
			return
		}

		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		username := strings.TrimSpace(req.Username)
		if username == "" {
			username = lobby.DefaultDisplayName
		}
		appearance := req.Appearance
		if string(appearance) == "null" {
			appearance = nil
		}

		ctx := c.Request.Context()
		err := gw.SaveProfile(ctx, store.Profile{
			UserID:         userID,
			Username:       username,
			Appearance:     appearance,
			EvolutionLevel: req.EvolutionLevel,
		})
		if err != nil {
			logger.Error("save profile", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save player"})
			return
		}

		p, err := gw.GetProfile(ctx, userID)
		if err != nil {
			logger.Error("reload profile", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load player"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}
