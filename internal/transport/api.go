package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/smorand/google-slides-deckbuilder/internal/auth"
	"github.com/smorand/google-slides-deckbuilder/internal/cache"
	"github.com/smorand/google-slides-deckbuilder/internal/catalog"
	"github.com/smorand/google-slides-deckbuilder/internal/config"
	"github.com/smorand/google-slides-deckbuilder/internal/events"
	"github.com/smorand/google-slides-deckbuilder/internal/generator"
	"github.com/smorand/google-slides-deckbuilder/internal/middleware"
	"github.com/smorand/google-slides-deckbuilder/internal/notify"
	"github.com/smorand/google-slides-deckbuilder/internal/permissions"
	"github.com/smorand/google-slides-deckbuilder/internal/ratelimit"
	"github.com/smorand/google-slides-deckbuilder/internal/remote"
)

const maxBodyBytes = 64 << 10

// StreamTicketParam carries the one-time ticket of an event stream.
const StreamTicketParam = "ticket"

// TeamDirectory resolves configured teams.
type TeamDirectory interface {
	Team(id string) (config.Team, bool)
}

// CatalogLoader fetches a team's section catalog.
type CatalogLoader interface {
	Load(ctx context.Context, team, url string) ([]catalog.Section, error)
}

// LogoFinder looks up company logos.
type LogoFinder interface {
	Lookup(ctx context.Context, field, company string) (string, error)
}

// FolderChecker verifies the destination folder of a generation.
type FolderChecker interface {
	CheckFolder(ctx context.Context, tokenSource oauth2.TokenSource, userEmail, folderID string) (*cache.FolderAccess, error)
}

// ServiceFactory builds the remote deck service acting as one user.
type ServiceFactory func(tokenSource oauth2.TokenSource) remote.Service

// TokenInvalidator drops the cached credentials of a session.
type TokenInvalidator interface {
	Invalidate(sessionKey string)
}

// RequestLimiter wraps a handler with rate limiting.
type RequestLimiter interface {
	Middleware(keyFn ratelimit.KeyFunc, next http.HandlerFunc) http.HandlerFunc
}

// APIConfig holds the dependencies of the API handlers.
type APIConfig struct {
	Teams      TeamDirectory
	Catalog    CatalogLoader
	Logos      LogoFinder
	Folders    FolderChecker
	Services   ServiceFactory
	Registry   *generator.Registry
	Hub        *events.Hub
	Streamer   *events.Streamer
	Notifier   *notify.Gateway
	Generation config.GenerationConfig
	Tickets    *auth.TicketStore
	// LogoLimiter rate limits logo lookups per session; nil disables it.
	LogoLimiter RequestLimiter
	// Tokens forgets a session's credentials once Google rejects them.
	Tokens TokenInvalidator
	// BaseContext bounds background generations. It should be cancelled on
	// shutdown.
	BaseContext context.Context
	Logger      *slog.Logger
}

// API serves the deck builder endpoints under /api.
type API struct {
	config APIConfig
}

// NewAPI creates the API handlers.
func NewAPI(config APIConfig) *API {
	if config.BaseContext == nil {
		config.BaseContext = context.Background()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Tickets == nil {
		config.Tickets = auth.NewTicketStore(auth.TicketStoreConfig{Logger: config.Logger})
	}
	return &API{config: config}
}

// RegisterStreams mounts the event stream on the root router r. It
// authenticates with a stream ticket and must be registered before the
// session-protected /api routes.
func (a *API) RegisterStreams(r *mux.Router) {
	r.HandleFunc("/api/generations/{id}/events", a.handleEvents).Methods(http.MethodGet)
}

// Register mounts the endpoints on r, which must already authenticate.
func (a *API) Register(r *mux.Router) {
	logo := http.HandlerFunc(a.handleLogo)
	if a.config.LogoLimiter != nil {
		logo = a.config.LogoLimiter.Middleware(sessionOrAddr, a.handleLogo)
	}

	r.HandleFunc("/me", a.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/teams/{team}/sections", a.handleSections).Methods(http.MethodGet)
	r.Handle("/logo", logo).Methods(http.MethodGet)
	r.HandleFunc("/notifications/permission", a.handlePermission).Methods(http.MethodPost)
	r.HandleFunc("/generations", a.handleCreateGeneration).Methods(http.MethodPost)
	r.HandleFunc("/generations/{id}", a.handleGetGeneration).Methods(http.MethodGet)
	r.HandleFunc("/generations/{id}/submit", a.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/generations/{id}/ticket", a.handleTicket).Methods(http.MethodPost)
}

func sessionOrAddr(r *http.Request) string {
	if key := middleware.GetSessionKey(r.Context()); key != "" {
		return key
	}
	return r.RemoteAddr
}

// handleMe handles GET /api/me.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, map[string]any{
		"email":         middleware.GetUserEmail(ctx),
		"name":          middleware.GetUserName(ctx),
		"notifications": a.config.Notifier.Permission(middleware.GetSessionKey(ctx)),
	})
}

// handleSections handles GET /api/teams/{team}/sections.
func (a *API) handleSections(w http.ResponseWriter, r *http.Request) {
	team, ok := a.config.Teams.Team(mux.Vars(r)["team"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown team")
		return
	}

	sections, err := a.config.Catalog.Load(r.Context(), team.ID, team.CatalogURL)
	if err != nil {
		a.config.Logger.Warn("catalog unavailable",
			slog.String("team", team.ID),
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    err.Error(),
			"sections": []catalog.Section{},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"team":              team.ID,
		"sections":          sections,
		"default_selection": catalog.DefaultSelection(sections),
	})
}

// handleLogo handles GET /api/logo?field=&query=.
func (a *API) handleLogo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	field := r.URL.Query().Get("field")
	if field == "" {
		field = "customer_name"
	}
	// Lookups race per session and field; the newest one wins.
	key := middleware.GetSessionKey(ctx) + ":" + field

	logoURL, err := a.config.Logos.Lookup(ctx, key, r.URL.Query().Get("query"))
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() == nil:
		writeError(w, http.StatusConflict, "lookup superseded")
		return
	default:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	var logo *string
	if logoURL != "" {
		logo = &logoURL
	}
	writeJSON(w, http.StatusOK, map[string]any{"logo": logo})
}

// handlePermission handles POST /api/notifications/permission.
func (a *API) handlePermission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Permission string `json:"permission"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	permission, err := notify.ParsePermission(body.Permission)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	granted := a.config.Notifier.Request(middleware.GetSessionKey(r.Context()), permission)
	writeJSON(w, http.StatusOK, map[string]any{
		"permission": permission,
		"granted":    granted,
	})
}

// handleCreateGeneration handles POST /api/generations. It checks the folder
// and starts the background copy of the team's master deck.
func (a *API) handleCreateGeneration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Team     string `json:"team"`
		FolderID string `json:"folder_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	body.FolderID = strings.TrimSpace(body.FolderID)
	if body.FolderID == "" {
		writeError(w, http.StatusBadRequest, "folder_id is required")
		return
	}

	team, ok := a.config.Teams.Team(body.Team)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown team")
		return
	}

	owner := middleware.GetSessionKey(ctx)
	tokenSource := middleware.GetTokenSource(ctx)
	if _, err := a.config.Folders.CheckFolder(ctx, tokenSource, middleware.GetUserEmail(ctx), body.FolderID); err != nil {
		a.writeFailure(w, owner, folderErrorStatus(err), err)
		return
	}

	service := a.config.Services(tokenSource)
	gen := a.config.Registry.Add(a.config.BaseContext, owner, team.ID, func(id string) *generator.Generator {
		return generator.New(service, generator.Config{
			Team:                team.Generator(),
			FolderID:            body.FolderID,
			CompanionTemplateID: a.config.Generation.CompanionTemplateID,
			TempName:            a.config.Generation.TempName,
			DeckSuffix:          a.config.Generation.DeckSuffix,
			CompanionSuffix:     a.config.Generation.CompanionSuffix,
			OnCopyError:         a.reportFailure(owner, id),
			Logger:              a.config.Logger.With(slog.String("generation_id", id)),
		}, a.statusSink(owner, id))
	})

	if err := gen.Generator.Start(gen.Context()); err != nil {
		a.config.Registry.Remove(owner, gen.ID)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": gen.ID})
}

// statusSink publishes statuses of generation id and notifies owner when
// the deck is ready.
func (a *API) statusSink(owner, id string) generator.StatusSink {
	return func(tag generator.StatusTag, info generator.Info) {
		a.config.Hub.Publish(id, events.Event{
			Type:   events.TypeStatus,
			Status: string(tag),
			Info:   info,
		})
		if tag == generator.StatusFinished {
			a.config.Notifier.NotifyDeckReady(owner, id, info.DeckURL)
		}
	}
}

// reportFailure returns the error callback of generation id. Expired
// credentials drop the owner's cached token source and ask for a new sign-in.
func (a *API) reportFailure(owner, id string) generator.ErrorCallback {
	return func(err error) {
		a.config.Logger.Error("generation failed",
			slog.String("generation_id", id),
			slog.Any("error", err),
		)
		e := events.Event{Type: events.TypeError, Error: err.Error()}
		if errors.Is(err, remote.ErrAuthExpired) {
			e.Reauth = true
			a.expireSession(owner)
		}
		a.config.Hub.Publish(id, e)
	}
}

func (a *API) expireSession(sessionKey string) {
	if a.config.Tokens != nil {
		a.config.Tokens.Invalidate(sessionKey)
	}
	a.config.Logger.Info("session credentials rejected by Google")
}

// submitRequest is the wizard form.
type submitRequest struct {
	CustomerName string `json:"customer_name"`
	AEName       string `json:"ae_name"`
	// UserName defaults to the signed-in user's name.
	UserName       string `json:"user_name"`
	LogoURL        string `json:"logo_url"`
	Chosen         []int  `json:"chosen"`
	WantsCompanion bool   `json:"wants_companion"`
}

// handleSubmit handles POST /api/generations/{id}/submit.
func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gen, ok := a.generation(w, r)
	if !ok {
		return
	}

	var body submitRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.UserName == "" {
		body.UserName = middleware.GetUserName(ctx)
	}

	team, ok := a.config.Teams.Team(gen.TeamID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown team")
		return
	}
	sections, err := a.config.Catalog.Load(ctx, team.ID, team.CatalogURL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	chosen, deleted, err := catalog.Split(sections, body.Chosen)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := generator.Request{
		CustomerName:   body.CustomerName,
		AEName:         body.AEName,
		UserName:       body.UserName,
		LogoURL:        body.LogoURL,
		Chosen:         chosen,
		Deleted:        deleted,
		WantsCompanion: body.WantsCompanion,
	}

	if err := gen.Generator.Generate(gen.Context(), req, a.reportFailure(gen.Owner, gen.ID)); err != nil {
		a.writeFailure(w, gen.Owner, generateErrorStatus(err), err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": gen.ID})
}

// handleGetGeneration handles GET /api/generations/{id}.
func (a *API) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	gen, ok := a.generation(w, r)
	if !ok {
		return
	}

	snap := gen.Generator.Snapshot()
	resp := map[string]any{
		"id":           gen.ID,
		"team":         gen.TeamID,
		"state":        snap.State,
		"last_status":  snap.LastStatus,
		"file_id":      snap.FileID,
		"deck_url":     snap.DeckURL,
		"companion_id": snap.CompanionID,
	}
	if snap.Err != nil {
		resp["error"] = snap.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTicket handles POST /api/generations/{id}/ticket. The ticket opens
// the generation's event stream once.
func (a *API) handleTicket(w http.ResponseWriter, r *http.Request) {
	gen, ok := a.generation(w, r)
	if !ok {
		return
	}

	ticket, err := a.config.Tickets.Issue(gen.Owner, gen.ID)
	if err != nil {
		a.config.Logger.Error("failed to issue stream ticket", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to issue stream ticket")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"ticket":     ticket,
		"expires_in": int(a.config.Tickets.TTL().Seconds()),
	})
}

// handleEvents handles GET /api/generations/{id}/events?ticket= as a
// websocket that closes once the generation is terminal.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ticket, ok := a.config.Tickets.Redeem(r.URL.Query().Get(StreamTicketParam), id)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired stream ticket")
		return
	}
	gen, err := a.config.Registry.Get(ticket.SessionKey, id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := a.config.Streamer.Serve(w, r, gen.ID, gen.Generator.Done()); err != nil {
		a.config.Logger.Debug("event stream ended",
			slog.String("generation_id", gen.ID),
			slog.Any("error", err),
		)
	}
}

func (a *API) generation(w http.ResponseWriter, r *http.Request) (*generator.Generation, bool) {
	gen, err := a.config.Registry.Get(middleware.GetSessionKey(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return gen, true
}

func folderErrorStatus(err error) int {
	switch {
	case errors.Is(err, remote.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, permissions.ErrFolderNotFound):
		return http.StatusNotFound
	case errors.Is(err, permissions.ErrNotAFolder):
		return http.StatusBadRequest
	case errors.Is(err, permissions.ErrNoWriteAccess):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func generateErrorStatus(err error) int {
	switch {
	case errors.Is(err, remote.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, generator.ErrCopyFailed):
		return http.StatusBadGateway
	case errors.Is(err, generator.ErrAlreadyInProgress), errors.Is(err, generator.ErrNotStarted):
		return http.StatusConflict
	case errors.Is(err, generator.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure answers err with status, or with 401 and a reauth flag when
// Google rejected the session's credentials.
func (a *API) writeFailure(w http.ResponseWriter, sessionKey string, status int, err error) {
	if errors.Is(err, remote.ErrAuthExpired) {
		a.expireSession(sessionKey)
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":  err.Error(),
			"reauth": true,
		})
		return
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
