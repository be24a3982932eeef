package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meowchat/meowchat/webclient/internal/apiclient"
	"github.com/meowchat/meowchat/webclient/internal/session"
	"github.com/meowchat/meowchat/webclient/pkg/logger"
)

// LoginRequest is the local login form.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// SessionManager is the part of session.Manager the surface drives.
type SessionManager interface {
	Session() session.Session
	VerifySession(ctx context.Context) session.Session
	Login(ctx context.Context, username, password string) (int, error)
	Register(ctx context.Context, r session.RegisterRequest) (int, error)
	Logout()
	Redirector() *apiclient.Redirector
}

// AuthHandler serves the local session endpoints.
type AuthHandler struct {
	sessions  SessionManager
	loginPath string
}

func NewAuthHandler(m SessionManager, loginPath string) *AuthHandler {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &AuthHandler{sessions: m, loginPath: loginPath}
}

// Register routes under /auth and the login entry point.
func (h *AuthHandler) Register(rg gin.IRouter) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/register", h.RegisterAccount)
	a.POST("/logout", h.Logout)
	a.POST("/verify", h.Verify)
	a.GET("/session", h.Session)
	rg.GET(h.loginPath, h.LoginPage)
}

func (h *AuthHandler) sessionBody(s session.Session) gin.H {
	return gin.H{
		"session":       s,
		"status":        s.Status().String(),
		"loginRequired": h.sessions.Redirector().Redirected(),
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}
	code, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		msg := apiclient.Message(err)
		if errors.Is(err, session.ErrSuperseded) {
			msg = err.Error()
		}
		c.JSON(code, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, h.sessionBody(h.sessions.Session()))
}

func (h *AuthHandler) RegisterAccount(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}
	code, err := h.sessions.Register(c.Request.Context(), session.RegisterRequest{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		c.JSON(code, gin.H{"error": apiclient.Message(err)})
		return
	}
	c.JSON(code, gin.H{"message": "Registration successful"})
}

// Logout never fails; the server is told in the background.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.sessions.Logout()
	c.JSON(http.StatusOK, h.sessionBody(h.sessions.Session()))
}

// Verify asks for a re-check of the session, e.g. when a window regains
// focus. Concurrent calls share one backend round trip.
func (h *AuthHandler) Verify(c *gin.Context) {
	s := h.sessions.VerifySession(c.Request.Context())
	c.JSON(http.StatusOK, h.sessionBody(s))
}

func (h *AuthHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessionBody(h.sessions.Session()))
}

func (h *AuthHandler) LoginPage(c *gin.Context) {
	logger.Debugf("login entry point requested next=%q", c.Query("next"))
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": "login required",
		"login": "/auth/login",
		"next":  c.Query("next"),
	})
}
