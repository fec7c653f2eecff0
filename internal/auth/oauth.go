package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultScopes grants access to Slides and Drive plus the user's identity.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/presentations",
	"https://www.googleapis.com/auth/drive",
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// OAuthConfig holds OAuth2 configuration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// SessionResult is what a successful sign-in hands back to the browser.
type SessionResult struct {
	SessionKey string `json:"session_key"`
	UserEmail  string `json:"email"`
	UserName   string `json:"name"`
}

// TokenCallback turns a freshly obtained token into a session.
type TokenCallback func(ctx context.Context, token *oauth2.Token) (*SessionResult, error)

// OAuthHandler handles the OAuth2 authentication flow.
type OAuthHandler struct {
	config  *oauth2.Config
	logger  *slog.Logger
	states  *stateStore
	onToken TokenCallback
}

// NewOAuthHandler creates a new OAuth handler.
func NewOAuthHandler(config OAuthConfig, logger *slog.Logger) *OAuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	return &OAuthHandler{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		logger: logger,
		states: newStateStore(logger),
	}
}

// SetOnTokenFunc sets the callback invoked when a token is obtained.
func (h *OAuthHandler) SetOnTokenFunc(fn TokenCallback) {
	h.onToken = fn
}

// HandleAuth handles GET /auth and initiates the OAuth2 flow.
func (h *OAuthHandler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	state, err := h.states.issue()
	if err != nil {
		h.logger.Error("failed to generate state", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}

	h.logger.Info("OAuth2 flow initiated",
		slog.String("redirect_uri", h.config.RedirectURL),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"authorization_url": h.AuthURL(state),
		"message":           "Please visit the authorization URL to sign in",
	})
}

// HandleCallback handles GET /auth/callback with the OAuth2 authorization code.
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		errDesc := query.Get("error_description")
		h.logger.Error("OAuth2 error from provider",
			slog.String("error", errParam),
			slog.String("description", errDesc),
		)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("OAuth2 error: %s - %s", errParam, errDesc))
		return
	}

	state := query.Get("state")
	if state == "" {
		h.writeError(w, http.StatusBadRequest, "missing state parameter")
		return
	}
	if !h.states.consume(state) {
		h.writeError(w, http.StatusBadRequest, "invalid state parameter")
		return
	}

	code := query.Get("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	token, err := h.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("failed to exchange code for token", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "failed to exchange code for token")
		return
	}

	h.logger.Info("OAuth2 token obtained",
		slog.Bool("has_refresh_token", token.RefreshToken != ""),
		slog.Time("expiry", token.Expiry),
	)

	if h.onToken == nil {
		h.writeError(w, http.StatusInternalServerError, "sign-in is not configured")
		return
	}

	result, err := h.onToken(r.Context(), token)
	if err != nil {
		h.logger.Error("token callback failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// AuthURL returns the OAuth2 authorization URL with the given state.
func (h *OAuthHandler) AuthURL(state string) string {
	return h.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges an authorization code for tokens.
func (h *OAuthHandler) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return h.config.Exchange(ctx, code)
}

// TokenSource returns a refreshing token source for a stored refresh token.
// ctx is used for token refreshes and must outlive the requests it serves.
func (h *OAuthHandler) TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	return h.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}

// writeError writes an error response.
func (h *OAuthHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
