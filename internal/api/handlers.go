package api

import (
	"fmt"
	"net/http"
	"time"

	"agora/internal/chat"
	"agora/internal/models"
)

// SessionHandler issues a fresh identity and its bearer token.
func (a *API) SessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := a.auth.Issue()
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenName,
		Value:    session.Token,
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Unix(session.TokenExpiry, 0),
	})
	writeJSONStatus(w, http.StatusCreated, session)
}

func (a *API) EndSessionHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	if err := a.auth.Revoke(a.getToken(r)); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenName,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})
	writeOK(w, "session ended")
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	user, err := a.store.WhoAmI(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, user)
}

type RegisterRequest struct {
	DisplayName string `json:"displayName"`
	UserName    string `json:"userName,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := a.store.RegisterUser(caller, chat.Registration{
		DisplayName: req.DisplayName,
		UserName:    req.UserName,
		Bio:         req.Bio,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, user)
}

// ProfileRequest fields left out of the body keep their current value.
type ProfileRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	UserName    *string `json:"userName,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
}

func (a *API) UpdateProfileHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	var req ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := a.store.UpdateProfile(caller, chat.ProfileUpdate(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, user)
}

type StatusRequest struct {
	Status models.UserStatus `json:"status"`
}

func (a *API) StatusHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := a.store.SetStatus(caller, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, user)
}

func (a *API) DeleteAccountHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	if err := a.store.DeleteAccount(caller); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, "account deleted")
}

// UsersHandler lists users. ?online=true keeps online users only, ?role= filters by role.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	var filter chat.UserFilter
	q := r.URL.Query()
	filter.OnlineOnly = q.Get("online") == "true"
	if raw := q.Get("role"); raw != "" {
		role, ok := models.ParseRole(raw)
		if !ok {
			writeError(w, fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, raw))
			return
		}
		filter.Role = role
	}
	writeJSON(w, a.store.GetUsers(filter))
}

func (a *API) SearchUsersHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	limit, offset, err := limitOffset(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, a.store.SearchUsers(r.URL.Query().Get("q"), limit, offset))
}

type RoleResponse struct {
	Identity models.Identity `json:"identity"`
	Role     models.Role     `json:"role"`
}

func (a *API) UserRoleHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	target := models.Identity(r.PathValue("id"))
	role, err := a.store.GetUserRole(target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, RoleResponse{Identity: target, Role: role})
}

type CountResponse struct {
	Count int `json:"count"`
}

func (a *API) UserMessageCountHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	writeJSON(w, CountResponse{Count: a.store.UserMessageCount(models.Identity(r.PathValue("id")))})
}

// BanRequest carries a Go duration string; empty bans permanently.
type BanRequest struct {
	Duration string `json:"duration,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (a *API) BanHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	var req BanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	var duration time.Duration
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			writeError(w, fmt.Errorf("%w: bad ban duration: %v", models.ErrInvalidInput, err))
			return
		}
		duration = d
	}

	target := models.Identity(r.PathValue("id"))
	if err := a.store.BanUser(caller, target, duration, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("user %s banned", target))
}

func (a *API) UnbanHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	a.roleChange(w, r, caller, a.store.UnbanUser, "unbanned")
}

func (a *API) AddModeratorHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	a.roleChange(w, r, caller, a.store.AddModerator, "promoted to moderator")
}

func (a *API) RemoveModeratorHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	a.roleChange(w, r, caller, a.store.RemoveModerator, "demoted to user")
}

func (a *API) AddAdminHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	a.roleChange(w, r, caller, a.store.AddAdmin, "promoted to admin")
}

func (a *API) TransferAdminHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	a.roleChange(w, r, caller, a.store.TransferAdmin, "received the caller's role")
}

func (a *API) roleChange(w http.ResponseWriter, r *http.Request, caller models.Identity,
	op func(caller, target models.Identity) error, done string) {
	target := models.Identity(r.PathValue("id"))
	if err := op(caller, target); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, fmt.Sprintf("user %s %s", target, done))
}

func limitOffset(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
