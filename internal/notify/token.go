package notify

// TokenSource supplies the auth token appended to the socket URL. It is read
// on every connect attempt so that a refreshed login is picked up.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed token
type StaticToken string

// Token returns t
func (t StaticToken) Token() string { return string(t) }

// TokenFunc adapts a function to TokenSource
type TokenFunc func() string

// Token calls f
func (f TokenFunc) Token() string { return f() }
