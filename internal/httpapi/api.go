// Package httpapi exposes the session and authorization engine over JSON
// endpoints. Business failures travel as result payloads, not errors; the
// transport maps them onto status codes without inventing new messages.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"authd.dev/internal/authz"
	"authd.dev/internal/obs"
	"authd.dev/internal/session"
)

// ReadyProbe reports storage readiness.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	sessions *session.Service
	authz    *authz.Service
	resolver *authz.Resolver
	store    authz.Store
	ready    ReadyProbe
	version  string
}

// New wires the routes.
func New(sessions *session.Service, authzSvc *authz.Service, resolver *authz.Resolver, store authz.Store, ready ReadyProbe, version string) *API {
	a := &API{
		mux:      http.NewServeMux(),
		sessions: sessions,
		authz:    authzSvc,
		resolver: resolver,
		store:    store,
		ready:    ready,
		version:  version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/sign-in", a.SignIn)
	a.mux.HandleFunc("POST /v1/auth/sign-out", a.SignOut)
	a.mux.HandleFunc("POST /v1/auth/refresh", a.Refresh)
	a.mux.HandleFunc("GET /v1/auth/session", RequireSession(a.Session))
	a.mux.HandleFunc("POST /v1/auth/verify-email", a.VerifyEmail)
	a.mux.HandleFunc("POST /v1/auth/change-password", RequireSession(a.ChangePassword))

	a.mux.HandleFunc("GET /v1/sessions", RequireSession(a.ListSessions))
	a.mux.HandleFunc("DELETE /v1/sessions/{id}", RequireSession(a.RevokeSession))

	a.mux.HandleFunc("GET /v1/permissions", RequireSession(a.ListPermissions))
	a.mux.HandleFunc("GET /v1/permissions/effective", RequireSession(a.EffectivePermissions))

	a.mux.HandleFunc("POST /v1/orgs", RequireSession(a.CreateOrganization))
	a.mux.HandleFunc("DELETE /v1/orgs/{id}", RequireSession(a.DeleteOrganization))
	a.mux.HandleFunc("GET /v1/orgs/{id}/roles", RequireSession(a.ListRoles))

	a.mux.HandleFunc("POST /v1/roles", RequireSession(a.CreateRole))
	a.mux.HandleFunc("PATCH /v1/roles/{id}", RequireSession(a.UpdateRole))
	a.mux.HandleFunc("DELETE /v1/roles/{id}", RequireSession(a.DeleteRole))

	a.mux.HandleFunc("POST /v1/teams", RequireSession(a.CreateTeam))
	a.mux.HandleFunc("POST /v1/teams/{id}/members", RequireSession(a.AddTeamMember))
	a.mux.HandleFunc("PATCH /v1/teams/{id}/members/{userID}", RequireSession(a.SetTeamMember))
	a.mux.HandleFunc("DELETE /v1/teams/{id}/members/{userID}", RequireSession(a.RemoveTeamMember))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware-wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.WithSession(h)
	h = SecurityHeaders(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authd",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- auth ---

func (a *API) SignIn(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	user, err := a.sessions.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		obs.SignInFailed()
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"message": "Invalid email or password.",
		})
		return
	}
	meta := session.Metadata{
		Device:   r.UserAgent(),
		Platform: r.Header.Get("Sec-CH-UA-Platform"),
		IP:       clientIP(r),
	}
	if _, err := a.sessions.Issue(r.Context(), Cookies(w, r), user.ID, meta, ""); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Sign-in failed.",
		})
		return
	}
	obs.SessionIssued()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"userId":             user.ID,
		"mustChangePassword": user.MustChangePassword,
	})
}

func (a *API) SignOut(w http.ResponseWriter, r *http.Request) {
	a.sessions.Remove(r.Context(), Cookies(w, r))
	obs.SessionRevoked("sign_out")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	a.sessions.Refresh(r.Context(), Cookies(w, r))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":      resolved.UserID,
		"primaryRole": resolved.PrimaryRole,
		"sessionId":   resolved.SessionID,
	})
}

func (a *API) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	res := a.authz.VerifyEmail(r.Context(), in.Token)
	writeResult(w, res.Result, map[string]any{"userId": res.UserID})
}

func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !readJSON(w, r, &in) {
		return
	}
	res := a.authz.ChangePassword(r.Context(), resolved.UserID, in.CurrentPassword, in.NewPassword)
	if res.Success {
		// Other devices must sign in again with the new password.
		if err := a.sessions.RevokeOthers(r.Context(), resolved.UserID, resolved.SessionID, resolved.UserID); err == nil {
			obs.SessionRevoked("password_change")
		}
	}
	writeResult(w, res, nil)
}

// --- sessions ---

func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	list, err := a.sessions.ListForUser(r.Context(), resolved.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Sessions could not be listed."})
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, s := range list {
		out = append(out, map[string]any{
			"id":           s.ID,
			"status":       s.Status,
			"current":      s.ID == resolved.SessionID,
			"device":       s.Metadata.Device,
			"platform":     s.Metadata.Platform,
			"ip":           s.Metadata.IP,
			"lastActiveAt": s.LastActiveAt.Format(time.RFC3339),
			"expiresAt":    s.ExpiresAt.Format(time.RFC3339),
			"createdAt":    s.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// RevokeSession revokes one of the caller's own sessions. A session id the
// caller does not own gets the same response as a nonexistent one.
func (a *API) RevokeSession(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	id := r.PathValue("id")
	target, err := a.sessions.Store().Find(r.Context(), id)
	if err != nil || target.UserID != resolved.UserID {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Session was not found."})
		return
	}
	if err := a.sessions.Revoke(r.Context(), id, resolved.UserID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Session could not be revoked."})
		return
	}
	obs.SessionRevoked("user")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- permissions ---

func (a *API) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.store.Permissions(r.Context()).List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Permissions could not be listed."})
		return
	}
	out := make([]map[string]any, 0, len(perms))
	for _, p := range perms {
		out = append(out, map[string]any{
			"key":         p.Key,
			"name":        p.Name,
			"category":    p.Category,
			"description": p.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (a *API) EffectivePermissions(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	scope := authz.GlobalScope()
	if orgID := r.URL.Query().Get("organizationId"); orgID != "" {
		scope = authz.OrganizationScope(orgID)
	} else if teamID := r.URL.Query().Get("teamId"); teamID != "" {
		scope = authz.TeamScope(teamID)
	}
	memo, _ := PermissionMemo(r.Context())
	set, err := memo.GetPermissions(r.Context(), resolved.UserID, scope)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Permissions could not be resolved."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":       scope.String(),
		"permissions": set.Keys(),
	})
}

// --- organizations ---

func (a *API) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	var in authz.CreateOrganizationInput
	if !readJSON(w, r, &in) {
		return
	}
	res := a.authz.CreateOrganization(r.Context(), resolved.UserID, in)
	var extra map[string]any
	if res.Organization != nil {
		extra = map[string]any{"organizationId": res.Organization.ID, "slug": res.Organization.Slug}
	}
	writeResult(w, res.Result, extra)
}

func (a *API) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	writeResult(w, a.authz.DeleteOrganization(r.Context(), resolved.UserID, r.PathValue("id")), nil)
}

func (a *API) ListRoles(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	orgID := r.PathValue("id")
	if _, err := a.store.Organizations(r.Context()).FindMembership(r.Context(), orgID, resolved.UserID); err != nil {
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": authz.Denied().Message})
		return
	}
	roles, err := a.store.Roles(r.Context()).ListByOrg(r.Context(), orgID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Roles could not be listed."})
		return
	}
	out := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		out = append(out, map[string]any{
			"id":          role.ID,
			"key":         role.Key,
			"name":        role.Name,
			"description": role.Description,
			"scope":       string(role.Scope),
			"isDefault":   role.IsDefault,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

// --- roles ---

func (a *API) CreateRole(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	var in authz.CreateRoleInput
	if !readJSON(w, r, &in) {
		return
	}
	res := a.authz.CreateRole(r.Context(), resolved.UserID, in)
	var extra map[string]any
	if res.Role != nil {
		extra = map[string]any{"roleId": res.Role.ID, "key": res.Role.Key}
	}
	writeResult(w, res.Result, extra)
}

func (a *API) UpdateRole(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	var in authz.UpdateRoleInput
	if !readJSON(w, r, &in) {
		return
	}
	in.RoleID = r.PathValue("id")
	writeResult(w, a.authz.UpdateRole(r.Context(), resolved.UserID, in), nil)
}

func (a *API) DeleteRole(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	writeResult(w, a.authz.DeleteRole(r.Context(), resolved.UserID, r.PathValue("id")), nil)
}

// --- teams ---

func (a *API) CreateTeam(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	var in authz.CreateTeamInput
	if !readJSON(w, r, &in) {
		return
	}
	res := a.authz.CreateTeam(r.Context(), resolved.UserID, in)
	var extra map[string]any
	if res.Team != nil {
		extra = map[string]any{"teamId": res.Team.ID, "slug": res.Team.Slug}
	}
	writeResult(w, res.Result, extra)
}

func (a *API) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	var in authz.AddTeamMemberInput
	if !readJSON(w, r, &in) {
		return
	}
	in.TeamID = r.PathValue("id")
	res := a.authz.AddTeamMember(r.Context(), resolved.UserID, in)
	extra := map[string]any{"userId": res.UserID, "onboarding": string(res.Onboarding)}
	if res.TemporaryPassword != "" {
		// Shown exactly once; it is never retrievable again.
		extra["temporaryPassword"] = res.TemporaryPassword
	}
	writeResult(w, res.Result, extra)
}

func (a *API) SetTeamMember(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	var in authz.SetTeamMemberInput
	if !readJSON(w, r, &in) {
		return
	}
	in.TeamID = r.PathValue("id")
	in.UserID = r.PathValue("userID")
	writeResult(w, a.authz.SetTeamMember(r.Context(), resolved.UserID, in), nil)
}

func (a *API) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	resolved, _ := CurrentSession(r.Context())
	writeResult(w, a.authz.RemoveTeamMember(r.Context(), resolved.UserID, r.PathValue("id"), r.PathValue("userID")), nil)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Request body could not be parsed.",
		})
		return false
	}
	return true
}

// writeResult maps a business result onto a status code without altering
// its message.
func writeResult(w http.ResponseWriter, res authz.Result, extra map[string]any) {
	body := map[string]any{
		"success": res.Success,
		"message": res.Message,
	}
	if len(res.FieldErrors) > 0 {
		body["fieldErrors"] = res.FieldErrors
	}
	if res.Success {
		for k, v := range extra {
			body[k] = v
		}
	}
	switch {
	case res.Success:
		writeJSON(w, http.StatusOK, body)
	case len(res.FieldErrors) > 0:
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case res.Message == authz.Denied().Message:
		writeJSON(w, http.StatusForbidden, body)
	default:
		writeJSON(w, http.StatusBadRequest, body)
	}
}
