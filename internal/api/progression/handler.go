// Package progression provides the REST API of the progression engine:
// awarding and adjusting XP, reading progression, missions, badges and
// the leaderboard.
package progression

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/service/actions"
	"github.com/degentalk/progression/internal/service/audit"
	"github.com/degentalk/progression/internal/service/badges"
	"github.com/degentalk/progression/internal/service/leaderboard"
	"github.com/degentalk/progression/internal/service/missions"
	"github.com/degentalk/progression/internal/service/ratelimit"
	"github.com/degentalk/progression/internal/service/xp"
	"github.com/degentalk/progression/pkg/logger"
)

// Engine awards, adjusts and reports XP.
type Engine interface {
	RegisterUser(ctx context.Context, user *models.User) error
	AwardXPWithContext(ctx context.Context, userID, actionKey string, metadata map[string]interface{}, contextID *string) (*xp.AwardResult, error)
	Adjust(ctx context.Context, userID string, amount int64, mode models.AdjustmentMode, reason string, adminID *string) (*xp.AwardResult, error)
	GetUserProgression(ctx context.Context, userID string) (*xp.Progression, error)
	GetActionLimits(ctx context.Context, userID, actionKey string) (*ratelimit.Limits, error)
}

// MissionService lists and claims missions.
type MissionService interface {
	ListForUser(ctx context.Context, userID string) ([]missions.UserMission, error)
}

// MissionClaimer claims a mission and applies its rewards.
type MissionClaimer interface {
	Claim(ctx context.Context, userID, missionID string) (*missions.ClaimOutcome, error)
}

// LeaderboardService serves rankings.
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, limit int) ([]leaderboard.Entry, error)
	GetUserStats(ctx context.Context, userID string) (*leaderboard.UserStats, error)
}

// BadgeService reads the badge catalog and holders.
type BadgeService interface {
	GetBadgeCatalog(ctx context.Context) ([]badges.CatalogEntry, error)
	GetBadgeByID(ctx context.Context, badgeID uint) (*badges.CatalogEntry, error)
	GetBadgeHolders(ctx context.Context, badgeID uint) ([]models.User, error)
	GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
}

// ActionAdmin manages action configuration.
type ActionAdmin interface {
	UpsertAction(ctx context.Context, action *models.ActionConfig) error
	List(ctx context.Context) ([]models.ActionConfig, error)
}

// History reads the audit trail of a user.
type History interface {
	History(ctx context.Context, userID string, limit int) ([]audit.Entry, error)
}

// HealthCheck is one dependency probed by GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler handles progression API requests.
type Handler struct {
	engine      Engine
	missions    MissionService
	claimer     MissionClaimer
	leaderboard LeaderboardService
	badges      BadgeService
	actions     ActionAdmin
	history     History
	health      []HealthCheck
	log         *logger.Logger
}

// NewHandler creates a new progression handler.
func NewHandler(
	engine *xp.Engine,
	tracker *missions.Tracker,
	claimer *missions.Claimer,
	leaderboardService *leaderboard.Service,
	badgeService *badges.Service,
	registry *actions.Registry,
	auditLog *audit.Logger,
	log *logger.Logger,
	health ...HealthCheck,
) *Handler {
	return NewHandlerWithInterfaces(engine, tracker, claimer, leaderboardService, badgeService, registry, auditLog, log, health...)
}

// NewHandlerWithInterfaces creates a new progression handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	engine Engine,
	missionService MissionService,
	claimer MissionClaimer,
	leaderboardService LeaderboardService,
	badgeService BadgeService,
	actionAdmin ActionAdmin,
	history History,
	log *logger.Logger,
	health ...HealthCheck,
) *Handler {
	return &Handler{
		engine:      engine,
		missions:    missionService,
		claimer:     claimer,
		leaderboard: leaderboardService,
		badges:      badgeService,
		actions:     actionAdmin,
		history:     history,
		health:      health,
		log:         log.Component("api"),
	}
}

// RegisterRoutes mounts every endpoint on router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	api.POST("/users", h.RegisterUser)
	api.POST("/users/:id/actions", h.AwardXP)
	api.GET("/users/:id/progression", h.GetUserProgression)
	api.GET("/users/:id/actions/:key/limits", h.GetActionLimits)
	api.GET("/users/:id/missions", h.GetUserMissions)
	api.POST("/users/:id/missions/:missionId/claim", h.ClaimMission)
	api.GET("/users/:id/stats", h.GetUserStats)
	api.GET("/users/:id/history", h.GetUserHistory)
	api.GET("/users/:id/badges", h.GetUserBadges)
	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/badges", h.GetBadgeCatalog)
	api.GET("/badges/:id", h.GetBadgeByID)
	api.GET("/badges/:id/holders", h.GetBadgeHolders)

	admin := api.Group("/admin")
	admin.POST("/users/:id/xp", h.AdjustXP)
	admin.GET("/actions", h.ListActions)
	admin.POST("/actions/:key", h.UpsertAction)
}

type registerUserRequest struct {
	ID       string `json:"id" binding:"required"`
	Username string `json:"username" binding:"required"`
}

// RegisterUser creates a user at level 1 with no XP.
// POST /api/v1/users.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	user := &models.User{ID: req.ID, Username: req.Username}
	if err := h.engine.RegisterUser(c.Request.Context(), user); err != nil {
		h.fail(c, err, "Failed to register user")
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("Registered user")
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

type awardRequest struct {
	ActionKey string                 `json:"action_key" binding:"required"`
	ContextID *string                `json:"context_id"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// AwardXP awards the XP of an action to a user.
// POST /api/v1/users/:id/actions.
func (h *Handler) AwardXP(c *gin.Context) {
	userID := c.Param("id")

	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := h.engine.AwardXPWithContext(c.Request.Context(), userID, req.ActionKey, req.Metadata, req.ContextID)
	if err != nil {
		h.fail(c, err, "Failed to award XP")
		return
	}
	if result == nil {
		c.JSON(http.StatusOK, gin.H{
			"awarded":    false,
			"user_id":    userID,
			"action_key": req.ActionKey,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"awarded": true,
		"result":  result,
	})
}

type adjustRequest struct {
	Amount  int64                 `json:"amount"`
	Mode    models.AdjustmentMode `json:"mode" binding:"required"`
	Reason  string                `json:"reason"`
	AdminID *string               `json:"admin_id"`
}

// AdjustXP adds, subtracts or sets a user's XP.
// POST /api/v1/admin/users/:id/xp.
func (h *Handler) AdjustXP(c *gin.Context) {
	userID := c.Param("id")

	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := h.engine.Adjust(c.Request.Context(), userID, req.Amount, req.Mode, req.Reason, req.AdminID)
	if err != nil {
		h.fail(c, err, "Failed to adjust XP")
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// GetUserProgression returns a user's XP, level and progress.
// GET /api/v1/users/:id/progression.
func (h *Handler) GetUserProgression(c *gin.Context) {
	progression, err := h.engine.GetUserProgression(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve progression")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"progression":  progression,
		"generated_at": time.Now().UTC(),
	})
}

// GetActionLimits returns the cap and cooldown state of one action.
// GET /api/v1/users/:id/actions/:key/limits.
func (h *Handler) GetActionLimits(c *gin.Context) {
	limits, err := h.engine.GetActionLimits(c.Request.Context(), c.Param("id"), c.Param("key"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve action limits")
		return
	}

	c.JSON(http.StatusOK, gin.H{"limits": limits})
}

// GetUserMissions returns active missions with the user's progress.
// GET /api/v1/users/:id/missions.
func (h *Handler) GetUserMissions(c *gin.Context) {
	list, err := h.missions.ListForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve missions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"missions":       list,
		"total_missions": len(list),
	})
}

// ClaimMission claims a completed mission and applies its rewards.
// POST /api/v1/users/:id/missions/:missionId/claim.
func (h *Handler) ClaimMission(c *gin.Context) {
	userID, missionID := c.Param("id"), c.Param("missionId")

	outcome, err := h.claimer.Claim(c.Request.Context(), userID, missionID)
	if err != nil {
		h.fail(c, err, "Failed to claim mission")
		return
	}

	h.log.Info().
		Str("user_id", userID).
		Str("mission_id", missionID).
		Bool("success", outcome.Success).
		Msg("Mission claim processed")

	c.JSON(http.StatusOK, outcome)
}

// GetUserStats returns the leaderboard view of one user.
// GET /api/v1/users/:id/stats.
func (h *Handler) GetUserStats(c *gin.Context) {
	stats, err := h.leaderboard.GetUserStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve user statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        stats,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserHistory returns the award and adjustment trail of a user.
// GET /api/v1/users/:id/history?limit=50.
func (h *Handler) GetUserHistory(c *gin.Context) {
	limit, err := h.parseLimit(c, 50, 500)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.history.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.fail(c, err, "Failed to retrieve history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history":       entries,
		"total_entries": len(entries),
	})
}

// GetLeaderboard returns the top users by XP.
// GET /api/v1/leaderboard?limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, 10, 100)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboard.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetUserBadges returns badges earned by a user.
// GET /api/v1/users/:id/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userBadges, err := h.badges.GetUserBadges(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve user badges")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       userBadges,
		"total_badges": len(userBadges),
	})
}

// GetBadgeCatalog returns all badges with holder counts.
// GET /api/v1/badges.
func (h *Handler) GetBadgeCatalog(c *gin.Context) {
	catalog, err := h.badges.GetBadgeCatalog(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to retrieve badge catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       catalog,
		"total_badges": len(catalog),
		"generated_at": time.Now().UTC(),
	})
}

// GetBadgeByID returns one badge.
// GET /api/v1/badges/:id.
func (h *Handler) GetBadgeByID(c *gin.Context) {
	badgeID, err := h.parseBadgeID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	badge, err := h.badges.GetBadgeByID(c.Request.Context(), badgeID)
	if err != nil {
		h.fail(c, err, "Failed to retrieve badge")
		return
	}

	c.JSON(http.StatusOK, gin.H{"badge": badge})
}

// GetBadgeHolders returns users who hold a badge.
// GET /api/v1/badges/:id/holders?limit=50.
func (h *Handler) GetBadgeHolders(c *gin.Context) {
	badgeID, err := h.parseBadgeID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := h.parseLimit(c, 50, 500)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	holders, err := h.badges.GetBadgeHolders(c.Request.Context(), badgeID)
	if err != nil {
		h.fail(c, err, "Failed to retrieve badge holders")
		return
	}

	total := len(holders)
	if len(holders) > limit {
		holders = holders[:limit]
	}

	c.JSON(http.StatusOK, gin.H{
		"badge_id":      badgeID,
		"holders":       holders,
		"total_holders": total,
	})
}

// ListActions returns every configured action.
// GET /api/v1/admin/actions.
func (h *Handler) ListActions(c *gin.Context) {
	list, err := h.actions.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to list actions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": list})
}

type upsertActionRequest struct {
	BaseValue       int64  `json:"base_value"`
	DailyCap        *int   `json:"daily_cap"`
	CooldownSeconds *int   `json:"cooldown_seconds"`
	Enabled         *bool  `json:"enabled"`
	Description     string `json:"description"`
}

// UpsertAction creates or replaces an action configuration.
// POST /api/v1/admin/actions/:key.
func (h *Handler) UpsertAction(c *gin.Context) {
	var req upsertActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	action := &models.ActionConfig{
		ActionKey:       c.Param("key"),
		BaseValue:       req.BaseValue,
		DailyCap:        req.DailyCap,
		CooldownSeconds: req.CooldownSeconds,
		Enabled:         req.Enabled == nil || *req.Enabled,
		Description:     req.Description,
	}
	if err := h.actions.UpsertAction(c.Request.Context(), action); err != nil {
		h.fail(c, err, "Failed to save action")
		return
	}

	c.JSON(http.StatusOK, gin.H{"action": action})
}

// Health reports the state of each dependency.
// GET /health.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(h.health))
	for _, hc := range h.health {
		if err := hc.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[hc.Name] = err.Error()
			continue
		}
		checks[hc.Name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
	})
}

// Helper functions

// parseBadgeID extracts and validates the badge ID from the URL parameter.
func (h *Handler) parseBadgeID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid badge ID: %s", idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit, maxLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > maxLimit {
		return 0, fmt.Errorf("limit cannot exceed %d", maxLimit)
	}
	return limit, nil
}

// fail maps a service error to a status code.
func (h *Handler) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		h.errorResponse(c, http.StatusBadRequest, err.Error())
	case apperrors.IsNotFound(err):
		h.errorResponse(c, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(message)
		h.errorResponse(c, http.StatusInternalServerError, message)
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
