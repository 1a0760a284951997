package web

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/didip/tollbooth/v8"

	"golang.org/x/crypto/bcrypt"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/syncview/app/web/enums"
)

// loginLimiter throttles login attempts per client IP, one per second with a
// small burst for typos
var loginLimiter = tollbooth.NewLimiter(1, nil).SetBurst(3).
	SetMessage("Too many login attempts, try again later")

// handleLoginForm displays the login form
func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.renderLoginPage(w, r, "", http.StatusOK)
}

// handleLogin processes the login form submission
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	password := r.FormValue("password")
	if password == "" {
		s.renderLoginPage(w, r, "Password is required", http.StatusUnauthorized)
		return
	}

	// validate password against bcrypt hash
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		log.Printf("[WARN] failed login attempt from %s", r.RemoteAddr)
		s.renderLoginPage(w, r, "Invalid password", http.StatusUnauthorized)
		return
	}

	// password is valid, set auth cookie
	// the token is a hash of the password hash, safe because the hash is
	// already one-way
	http.SetCookie(w, &http.Cookie{
		Name:     "syncview-auth",
		Value:    s.generateAuthToken(),
		Path:     s.cookiePath(),
		MaxAge:   int(s.loginTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})

	http.Redirect(w, r, s.url("/"), http.StatusSeeOther)
}

// handleLogout logs the operator out by clearing the auth cookie
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "syncview-auth",
		Value:    "",
		Path:     s.cookiePath(),
		MaxAge:   -1, // delete cookie
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})

	// tell HTMX to perform a full page refresh instead of swapping content
	w.Header().Set("HX-Refresh", "true")

	http.Redirect(w, r, s.url("/login"), http.StatusSeeOther)
}

// renderLoginPage renders the login form, optionally with an error message
func (s *Server) renderLoginPage(w http.ResponseWriter, r *http.Request, errorMsg string, status int) {
	tmpl := s.templates["login"]
	if tmpl == nil {
		log.Printf("[ERROR] login template not found in templates map")
		http.Error(w, "Login template not found", http.StatusInternalServerError)
		return
	}

	data := struct {
		Error string
		Theme enums.Theme
	}{
		Error: errorMsg,
		Theme: s.getTheme(r),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := tmpl.Execute(w, data); err != nil {
		log.Printf("[ERROR] failed to render login template: %v", err)
		http.Error(w, "Failed to render login page", http.StatusInternalServerError)
	}
}

// authMiddleware checks for auth cookie or falls back to basic auth
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// skip auth for login page and static resources
		if r.URL.Path == "/login" || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		// check auth cookie
		cookie, err := r.Cookie("syncview-auth")
		if err == nil && s.validateAuthToken(cookie.Value) {
			next.ServeHTTP(w, r)
			return
		}

		// fallback to basic auth for API clients
		username, password, ok := r.BasicAuth()
		if ok && username == "syncview" {
			if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		// no valid auth, redirect browsers to login and 401 the rest
		if r.Header.Get("Accept") == "" || strings.Contains(r.Header.Get("Accept"), "text/html") {
			http.Redirect(w, r, s.url("/login"), http.StatusSeeOther)
		} else {
			w.Header().Set("WWW-Authenticate", `Basic realm="syncview console"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	})
}

// generateAuthToken derives the stateless session token
func (s *Server) generateAuthToken() string {
	// the password hash itself is the secret, hashing it once more keeps it
	// out of the cookie
	h := sha256.Sum256([]byte(s.passwordHash + "syncview-auth-token"))
	return hex.EncodeToString(h[:])
}

// validateAuthToken checks if the auth token is valid
func (s *Server) validateAuthToken(token string) bool {
	return token == s.generateAuthToken()
}
