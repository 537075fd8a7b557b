package models

// SessionState drives the initial route shown to the user.
type SessionState int

const (
	SessionLoading SessionState = iota
	SessionAuthenticated
	SessionNotAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case SessionLoading:
		return "Loading"
	case SessionAuthenticated:
		return "Authenticated"
	case SessionNotAuthenticated:
		return "NotAuthenticated"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is the result of a completed check.
func (s SessionState) Terminal() bool {
	return s == SessionAuthenticated || s == SessionNotAuthenticated
}
