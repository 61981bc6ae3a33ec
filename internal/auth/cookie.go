package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "storefront_session"

// CookieTransport carries session tokens in an HTTP-only cookie.
type CookieTransport struct {
	secure bool
	now    func() time.Time
}

// NewCookieTransport returns a transport; secure marks cookies HTTPS-only
// and should be set in production.
func NewCookieTransport(secure bool) *CookieTransport {
	return &CookieTransport{secure: secure, now: time.Now}
}

// Set writes the session cookie. It must be called before the response
// header is written.
func (c *CookieTransport) Set(w http.ResponseWriter, token SessionToken, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(c.now()).Seconds())
	if maxAge < 1 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    string(token),
		Path:     "/",
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie on the client.
func (c *CookieTransport) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the session token sent with r, if any.
func (c *CookieTransport) Read(r *http.Request) (SessionToken, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return SessionToken(cookie.Value), true
}
