package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wfunc/tictactoe/logger"
)

const maxUsernameLength = 32

// Service serves the account endpoints and authenticates handshakes.
type Service struct {
	users      *UserStore
	tokens     *Tokens
	cookieName string
	ttl        time.Duration
}

func NewService(users *UserStore, tokens *Tokens, cookieName string, ttl time.Duration) *Service {
	return &Service{
		users:      users,
		tokens:     tokens,
		cookieName: cookieName,
		ttl:        ttl,
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userView struct {
	Username string `json:"username"`
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /user", s.handleUser)
}

// Authenticate returns the username bound to the request's session cookie.
// The account must still exist in the store.
func (s *Service) Authenticate(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return "", ErrInvalidToken
	}
	username, err := s.tokens.Parse(cookie.Value)
	if err != nil {
		return "", err
	}
	if !s.users.Exists(username) {
		return "", ErrInvalidToken
	}
	return username, nil
}

func (s *Service) handleSignup(w http.ResponseWriter, r *http.Request) {
	creds, ok := readCredentials(w, r)
	if !ok {
		return
	}
	if len(creds.Username) > maxUsernameLength {
		writeError(w, http.StatusBadRequest, "Username too long")
		return
	}

	if err := s.users.Create(creds.Username, creds.Password); err != nil {
		if errors.Is(err, ErrUserExists) {
			writeError(w, http.StatusBadRequest, "Username already exists")
			return
		}
		logger.Log.Errorw("signup failed", "user", creds.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Signup failed")
		return
	}

	logger.Log.Infow("account created", "user", creds.Username)
	s.startSession(w, creds.Username, "Account created successfully")
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, ok := readCredentials(w, r)
	if !ok {
		return
	}
	if err := s.users.Verify(creds.Username, creds.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	s.startSession(w, creds.Username, "Login successful")
}

func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.cookieName); err == nil {
		s.tokens.Revoke(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Service) handleUser(w http.ResponseWriter, r *http.Request) {
	username, err := s.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userView{Username: username}})
}

func (s *Service) startSession(w http.ResponseWriter, username, message string) {
	token, err := s.tokens.Issue(username)
	if err != nil {
		logger.Log.Errorw("issue session token", "user", username, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not start session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

// readCredentials accepts a JSON body or a urlencoded form.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var creds credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&creds); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return creds, false
		}
	} else {
		creds.Username = r.PostFormValue("username")
		creds.Password = r.PostFormValue("password")
	}

	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return creds, false
	}
	return creds, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
