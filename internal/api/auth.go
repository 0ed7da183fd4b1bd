package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/pulsechat/internal/auth"
	"github.com/lalith-99/pulsechat/internal/middleware"
	"github.com/lalith-99/pulsechat/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles signup, login and the session check.
// Signup and login are public: the caller has no JWT yet, that's what
// these endpoints produce.
type AuthHandler struct {
	users     repository.UserRepository
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewAuthHandler(users repository.UserRepository, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, tokenTTL: tokenTTL, logger: logger}
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required,max=100"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Bio      string `json:"bio" binding:"max=500"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Signup handles POST /v1/auth/signup
//
// Flow:
//  1. Validate input
//  2. Hash the password (bcrypt salts every hash on its own)
//  3. Create the user; a duplicate email is a 409
//  4. Return a JWT with the user
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "signup failed"})
		return
	}

	user, err := h.users.Create(c.Request.Context(), email, strings.TrimSpace(req.FullName), req.Bio, string(hash))
	if errors.Is(err, repository.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "email already registered"})
		return
	}
	if err != nil {
		h.logger.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "signup failed"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Email, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "signup failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "token": token, "user": user})
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.logger.Error("failed to find user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "login failed"})
		return
	}

	// Same answer for unknown email and wrong password, so the endpoint
	// doesn't reveal which emails are registered.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid email or password"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Email, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "user": user})
}

// Check handles GET /v1/auth/check. It runs behind AuthMiddleware and
// returns the caller's current profile.
func (h *AuthHandler) Check(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "check failed"})
		return
	}
	// A valid token for a deleted user.
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "user no longer exists"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}
