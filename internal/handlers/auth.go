package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskmanager/api/internal/models"
	"taskmanager/api/internal/service"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50,personname"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,password"`
	Role     string `json:"role"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      models.UserRole(req.Role),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusCreated, "User registered successfully", toAuthResponse(result))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusOK, "Login successful", toAuthResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h HandlerSet) RefreshToken(c *gin.Context) {
	var req refreshRequest
	// An unreadable body is treated the same as a missing token.
	if err := c.ShouldBindJSON(&req); bodyTooLarge(err) {
		failBinding(c, err)
		return
	}
	if req.RefreshToken == "" {
		fail(c, http.StatusBadRequest, "Refresh token is required")
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, c.ClientIP())
	if err != nil {
		h.failService(c, err)
		return
	}

	data := gin.H{"accessToken": result.AccessToken}
	if result.RefreshToken != "" {
		data["refreshToken"] = result.RefreshToken
	}
	respond(c, http.StatusOK, "", data)
}

func (h HandlerSet) Logout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.auth.Logout(c.Request.Context(), user.ID, c.ClientIP()); err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusOK, "Logged out successfully", nil)
}

func (h HandlerSet) Me(c *gin.Context) {
	current, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.auth.Me(c.Request.Context(), current.ID)
	if err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusOK, "", toUserResponse(user))
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6,password"`
}

func (h HandlerSet) UpdatePassword(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}

	tokens, err := h.auth.UpdatePassword(c.Request.Context(), service.UpdatePasswordInput{
		UserID:          user.ID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		IPAddress:       c.ClientIP(),
	})
	if err != nil {
		// the caller is already authenticated, so a wrong current password is
		// a bad request rather than an auth failure
		if errors.Is(err, service.ErrInvalidCredentials) {
			fail(c, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		h.failService(c, err)
		return
	}

	respond(c, http.StatusOK, "Password updated successfully", gin.H{
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
	})
}

type updateProfileRequest struct {
	Name  string `json:"name" binding:"omitempty,min=2,max=50,personname"`
	Email string `json:"email" binding:"omitempty,email"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	current, ok := currentUser(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), current.ID, req.Name, req.Email)
	if err != nil {
		h.failService(c, err)
		return
	}

	respond(c, http.StatusOK, "Profile updated successfully", toUserResponse(user))
}

func toAuthResponse(result service.AuthResult) authResponse {
	return authResponse{
		User:         toUserResponse(result.User),
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	}
}
