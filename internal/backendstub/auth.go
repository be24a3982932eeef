package backendstub

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meowchat/meowchat/webclient/internal/users"
	"github.com/meowchat/meowchat/webclient/pkg/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func userBody(a *users.Account) gin.H {
	return gin.H{"id": a.ID, "username": a.Username, "first_name": a.FirstName, "last_name": a.LastName}
}

func (b *Backend) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}
	ctx := c.Request.Context()
	a, err := b.users.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		log.Warnf("login failed for username: %s", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		log.Errorf("login error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	rft, err := b.sessions.CreateSession(ctx, a.Sub(), b.opts.RefreshTTL)
	if err != nil {
		log.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	access, err := b.issuer.Issue(a.Sub(), a.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	b.setCookies(c, access, rft)
	log.Infof("user %s logged in", a.Username)
	c.JSON(http.StatusOK, gin.H{
		"message":       "Login successful",
		"token":         access,
		"refresh_token": rft,
		"user_id":       a.Sub(),
		"username":      a.Username,
		"user":          userBody(a),
	})
}

func (b *Backend) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}
	a, err := b.users.Register(c.Request.Context(), users.Registration{
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
	})
	var fe *users.FieldError
	switch {
	case errors.Is(err, users.ErrPasswordMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.As(err, &fe):
		c.JSON(http.StatusBadRequest, gin.H{fe.Field: []string{fe.Message}})
		return
	case err != nil:
		log.Errorf("registration error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	log.Infof("user %s registered", a.Username)
	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful", "user_id": a.Sub(), "username": a.Username})
}

func (b *Backend) verify(c *gin.Context) {
	a := b.currentAccount(c)
	if a == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user_id":       a.Sub(),
		"username":      a.Username,
		"user":          userBody(a),
	})
}

// refresh reads the refresh token from the body or, for cookie clients, the
// refresh cookie. The refresh token itself is not rotated.
func (b *Backend) refresh(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	if req.Refresh == "" {
		req.Refresh, _ = c.Cookie(RefreshCookie)
	}
	ctx := c.Request.Context()
	sess, err := b.sessions.ValidateRefresh(ctx, req.Refresh)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	id, _ := strconv.Atoi(sess.Sub)
	a, err := b.users.GetByID(ctx, id)
	if err != nil || a == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found."})
		return
	}
	access, err := b.issuer.Issue(a.Sub(), a.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.SetCookie(AccessCookie, access, int(b.issuer.TTL().Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": access})
}

// logout blacklists the presented access token for the rest of its life and
// ends the subject's refresh sessions.
func (b *Backend) logout(c *gin.Context) {
	ctx := c.Request.Context()
	raw, err := middleware.ExtractToken(c, b.auth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Not logged in"})
		return
	}
	claims, err := b.issuer.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Not logged in"})
		return
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if err := b.blacklist.Add(ctx, raw, time.Until(exp.Time)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
			return
		}
	}
	sub, _ := claims.GetSubject()
	if err := b.sessions.RevokeSubject(ctx, sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
		return
	}
	b.clearCookies(c)
	log.Infof("subject %s logged out", sub)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

func (b *Backend) currentAccount(c *gin.Context) *users.Account {
	id, err := strconv.Atoi(middleware.Subject(c))
	if err != nil {
		return nil
	}
	a, err := b.users.GetByID(c.Request.Context(), id)
	if err != nil {
		log.Errorf("user lookup failed: %v", err)
		return nil
	}
	return a
}

func (b *Backend) setCookies(c *gin.Context, access, refresh string) {
	c.SetCookie(AccessCookie, access, int(b.issuer.TTL().Seconds()), "/", "", false, true)
	c.SetCookie(RefreshCookie, refresh, int(b.opts.RefreshTTL.Seconds()), "/", "", false, true)
}

func (b *Backend) clearCookies(c *gin.Context) {
	c.SetCookie(AccessCookie, "", -1, "/", "", false, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", false, true)
}
