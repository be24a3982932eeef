package models

// UserSnapshot is the client's cached copy of the server-asserted identity.
// It is always replaced as a whole; callers must never patch single fields.
type UserSnapshot struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

// Clone returns an independent copy, or nil for a nil snapshot.
func (u *UserSnapshot) Clone() *UserSnapshot {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Empty reports whether the snapshot carries no identity at all.
func (u *UserSnapshot) Empty() bool {
	return u == nil || (u.ID == "" && u.Username == "")
}
