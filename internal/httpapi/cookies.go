package httpapi

import (
	"net/http"

	"authd.dev/internal/session"
)

// requestCookies adapts one request/response pair to the cookie capability
// the session engine expects.
type requestCookies struct {
	w http.ResponseWriter
	r *http.Request
}

// Cookies builds the session cookie view for one exchange.
func Cookies(w http.ResponseWriter, r *http.Request) session.Cookies {
	return &requestCookies{w: w, r: r}
}

func (c *requestCookies) Get(name string) (string, bool) {
	cookie, err := c.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

func (c *requestCookies) Set(name, value string, opts session.CookieOptions) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		Expires:  opts.Expires,
		HttpOnly: opts.HTTPOnly,
		Secure:   opts.Secure,
		SameSite: sameSite(opts.SameSite),
	})
}

func (c *requestCookies) Delete(name string) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func sameSite(mode string) http.SameSite {
	switch mode {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
