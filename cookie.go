package redisession

import (
	"net/http"
	"time"
)

// CookieIssuer overwrites the client-held session identifier after
// regeneration. A zero expiresAt means a session-scoped cookie.
type CookieIssuer interface {
	SetCookie(name, value string, expiresAt time.Time, path, domain string, secure, httpOnly bool)
}

// ResponseWriterIssuer issues cookies on an http.ResponseWriter. Construct
// one per request and attach it with [WithCookieIssuer].
type ResponseWriterIssuer struct {
	W http.ResponseWriter
}

// SetCookie writes the session cookie with the given attributes.
func (i ResponseWriterIssuer) SetCookie(name, value string, expiresAt time.Time, path, domain string, secure, httpOnly bool) {
	http.SetCookie(i.W, &http.Cookie{
		Name:     name,
		Value:    value,
		Expires:  expiresAt,
		Path:     path,
		Domain:   domain,
		Secure:   secure,
		HttpOnly: httpOnly,
	})
}
