package metadata

// UserContext is the access-control principal a call runs as. A nil
// *UserContext stands for the system itself (CLI, startup jobs) and is
// allowed everything.
type UserContext struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Admin       bool     `json:"admin"`
	Permissions []string `json:"permissions"`

	// Related holds, per target entity, the ids the principal is related to.
	// Visibility scopes are checked against it.
	Related map[string][]int64 `json:"-"`
}

// IsAdmin checks whether the user bypasses permission and scope checks.
func (u *UserContext) IsAdmin() bool {
	return u == nil || u.Admin
}

// Can checks whether the user may perform action on entity. Permission
// tokens are "entity:action" with "*" allowed on either side.
func (u *UserContext) Can(entity, action string) bool {
	if u.IsAdmin() {
		return true
	}
	for _, p := range u.Permissions {
		switch p {
		case "*", entity + ":" + action, "*:" + action, entity + ":*":
			return true
		}
	}
	return false
}
