package auth

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookieName  = "access_token"
	RefreshTokenCookieName = "refresh_token"

	// refreshCookiePath limits the refresh cookie to the endpoints that read it
	refreshCookiePath = "/auth"
)

// ShouldUseCookies reports whether the caller is a browser that asked for
// cookie-based auth. Non-browser clients get tokens in the response body.
func ShouldUseCookies(r *http.Request) bool {
	if r.Header.Get("X-Auth-Mode") == "cookie" {
		return true
	}
	return r.Header.Get("Origin") != "" && r.Header.Get("X-Auth-Mode") != "token"
}

// SetAuthCookies writes the access and refresh tokens as HttpOnly cookies
func SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, secure bool, accessDuration, refreshDuration time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookieName,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(accessDuration.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookieName,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		MaxAge:   int(refreshDuration.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearAuthCookies expires both auth cookies
func ClearAuthCookies(w http.ResponseWriter, secure bool) {
	for _, c := range []struct{ name, path string }{
		{AccessTokenCookieName, "/"},
		{RefreshTokenCookieName, refreshCookiePath},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func GetAccessTokenFromCookie(r *http.Request) (string, error) {
	return cookieValue(r, AccessTokenCookieName)
}

func GetRefreshTokenFromCookie(r *http.Request) (string, error) {
	return cookieValue(r, RefreshTokenCookieName)
}

func cookieValue(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	if c.Value == "" {
		return "", http.ErrNoCookie
	}
	return c.Value, nil
}
