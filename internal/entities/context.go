package entities

// SessionContext carries the caller's upstream credentials through the
// request path. It is passed explicitly into the gateway instead of being
// read from ambient state, so request construction is testable.
type SessionContext struct {
	Token string
	Email string
}

// Authenticated reports whether the context carries a bearer token.
func (sc SessionContext) Authenticated() bool {
	return sc.Token != ""
}
