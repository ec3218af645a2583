package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/domain/users"
	"github.com/agrobid/agrobid/pkg/auth"
)

// UserHandler exposes registration, login and profile management.
type UserHandler struct {
	service *users.Service
	signer  *auth.Signer
	logger  *slog.Logger
}

func NewUserHandler(service *users.Service, signer *auth.Signer, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, signer: signer, logger: logger}
}

type registerRequest struct {
	Name     string        `json:"name" binding:"required"`
	Email    string        `json:"email" binding:"required"`
	Password string        `json:"password" binding:"required"`
	Role     users.Role    `json:"role" binding:"required"`
	Phone    string        `json:"phone" binding:"required"`
	Address  users.Address `json:"address" binding:"required"`

	FarmerDetails      *users.FarmerDetails      `json:"farmer_details"`
	BuyerDetails       *users.BuyerDetails       `json:"buyer_details"`
	TransporterDetails *users.TransporterDetails `json:"transporter_details"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	user, err := h.service.Register(c.Request.Context(), users.RegisterCommand{
		Name:               req.Name,
		Email:              req.Email,
		Password:           req.Password,
		Role:               req.Role,
		Phone:              req.Phone,
		Address:            req.Address,
		FarmerDetails:      req.FarmerDetails,
		BuyerDetails:       req.BuyerDetails,
		TransporterDetails: req.TransporterDetails,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, expiresAt, err := h.signer.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"token":      token,
		"expires_at": expiresAt,
		"data":       user,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	user, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, expiresAt, err := h.signer.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"expires_at": expiresAt,
		"data":       user,
	})
}

func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.service.GetProfile(c.Request.Context(), auth.MustGetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

type updateProfileRequest struct {
	Name    string         `json:"name"`
	Phone   string         `json:"phone"`
	Address *users.Address `json:"address"`

	FarmerDetails      *users.FarmerDetails      `json:"farmer_details"`
	BuyerDetails       *users.BuyerDetails       `json:"buyer_details"`
	TransporterDetails *users.TransporterDetails `json:"transporter_details"`
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), users.UpdateProfileCommand{
		UserID:             auth.MustGetUserID(c),
		Name:               req.Name,
		Phone:              req.Phone,
		Address:            req.Address,
		FarmerDetails:      req.FarmerDetails,
		BuyerDetails:       req.BuyerDetails,
		TransporterDetails: req.TransporterDetails,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	err := h.service.ChangePassword(c.Request.Context(), auth.MustGetUserID(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "password updated"})
}

func (h *UserHandler) DeactivateMe(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), auth.MustGetUserID(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "account deactivated"})
}

func (h *UserHandler) GetPublic(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	profile, err := h.service.GetPublic(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": profile})
}

func (h *UserHandler) List(c *gin.Context) {
	filter := users.ListFilter{
		Role:   users.Role(c.Query("role")),
		City:   c.Query("city"),
		State:  c.Query("state"),
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	}
	if v := c.Query("verified"); v != "" {
		verified := v == "true"
		filter.Verified = &verified
	}

	items, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	profiles := make([]users.PublicProfile, 0, len(items))
	for _, u := range items {
		profiles = append(profiles, u.Public())
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(profiles),
		"total":   total,
		"data":    profiles,
	})
}
