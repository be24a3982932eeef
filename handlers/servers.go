package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/meowchat/meowchat/webclient/internal/gate"
	"github.com/meowchat/meowchat/webclient/internal/membership"
	"github.com/meowchat/meowchat/webclient/internal/session"
	"github.com/meowchat/meowchat/webclient/pkg/logger"
)

// Membership is the part of membership.Cache the server routes use.
type Membership interface {
	IsMember(ctx context.Context, serverID int) (bool, error)
	JoinServer(ctx context.Context, serverID int) error
	LeaveServer(ctx context.Context, serverID int) error
}

// ServersHandler serves the member-only server pages and the join and leave
// actions.
type ServersHandler struct {
	sessions  gate.SessionSource
	members   Membership
	loginPath string
}

func NewServersHandler(s gate.SessionSource, m Membership, loginPath string) *ServersHandler {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &ServersHandler{sessions: s, members: m, loginPath: loginPath}
}

func (h *ServersHandler) Register(rg gin.IRouter) {
	g := rg.Group("/servers", gate.RequireSession(h.sessions, h.loginPath))
	g.GET("/:serverId", gate.RequireMembership(h.sessions, h.members, "serverId", h.loginPath), h.Show)
	g.POST("/:serverId/join", h.Join)
	g.DELETE("/:serverId/membership", h.Leave)
}

// Show renders a server page; the gate has already admitted the caller.
func (h *ServersHandler) Show(c *gin.Context) {
	id := c.GetInt(gate.ServerIDKey)
	body := gin.H{"serverId": id, "isMember": true}
	if v, ok := c.Get(gate.SessionKey); ok {
		if s, ok := v.(session.Session); ok && s.User != nil {
			body["user"] = s.User
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *ServersHandler) Join(c *gin.Context) {
	id, ok := serverID(c)
	if !ok {
		return
	}
	if err := h.members.JoinServer(c.Request.Context(), id); err != nil {
		logger.Warnf("join server=%d failed: %v", id, err)
		c.JSON(actionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Joined server", "serverId": id})
}

func (h *ServersHandler) Leave(c *gin.Context) {
	id, ok := serverID(c)
	if !ok {
		return
	}
	if err := h.members.LeaveServer(c.Request.Context(), id); err != nil {
		logger.Warnf("leave server=%d failed: %v", id, err)
		c.JSON(actionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left server", "serverId": id})
}

func serverID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("serverId"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
		return 0, false
	}
	return id, true
}

// actionStatus maps a join or leave failure onto a local status. Upstream
// 5xx and transport failures become 502.
func actionStatus(err error) int {
	if errors.Is(err, membership.ErrDenied) {
		return http.StatusForbidden
	}
	var ae *membership.ActionError
	if errors.As(err, &ae) && ae.StatusCode >= 400 && ae.StatusCode < 500 {
		return ae.StatusCode
	}
	return http.StatusBadGateway
}
