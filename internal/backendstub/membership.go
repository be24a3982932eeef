package backendstub

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// serverFor resolves the :id parameter. It writes the 404 itself.
func (b *Backend) serverFor(c *gin.Context) (*server, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return nil, false
	}
	s, ok := b.servers[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Server not found"})
		return nil, false
	}
	return s, true
}

func (b *Backend) isMember(c *gin.Context) {
	a := b.currentAccount(c)
	if a == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found."})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.serverFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_member": s.Members[a.ID]})
}

func (b *Backend) join(c *gin.Context) {
	a := b.currentAccount(c)
	if a == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found."})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.serverFor(c)
	if !ok {
		return
	}
	if s.Members[a.ID] {
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
		return
	}
	s.Members[a.ID] = true
	log.Infof("user %s joined server %d", a.Username, s.ID)
	c.JSON(http.StatusCreated, gin.H{"message": "User joined server successfully"})
}

// leave refuses the owner: a server cannot lose its owner.
func (b *Backend) leave(c *gin.Context) {
	a := b.currentAccount(c)
	if a == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found."})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.serverFor(c)
	if !ok {
		return
	}
	switch {
	case s.OwnerID == a.ID:
		c.JSON(http.StatusForbidden, gin.H{"error": "Owners cannot be removed as a member"})
	case !s.Members[a.ID]:
		c.JSON(http.StatusNotFound, gin.H{"error": "User is not a member"})
	default:
		delete(s.Members, a.ID)
		log.Infof("user %s left server %d", a.Username, s.ID)
		c.JSON(http.StatusOK, gin.H{"message": "User removed from server"})
	}
}
