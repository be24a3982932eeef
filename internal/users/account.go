package users

import (
	"strconv"
	"strings"
	"time"

	"github.com/meowchat/meowchat/webclient/internal/models"
)

// Account is a registered user of the dev backend.
type Account struct {
	ID           int
	Username     string
	FirstName    string
	LastName     string
	PasswordHash []byte
	CreatedAt    time.Time
}

func (a *Account) Sub() string { return strconv.Itoa(a.ID) }

func (a *Account) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Snapshot is the identity the backend reports to clients.
func (a *Account) Snapshot() *models.UserSnapshot {
	return &models.UserSnapshot{ID: a.Sub(), Username: a.Username, DisplayName: a.DisplayName()}
}
