package api

import (
	"net/http"

	"agora/internal/chat"
	"agora/internal/models"
)

func (a *API) RoomsHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	writeJSON(w, a.store.ListRooms())
}

type CreateRoomRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	ReadOnly bool   `json:"readOnly,omitempty"`
}

func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	var req CreateRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	room, err := a.store.CreateRoom(caller, req.ID, req.Name, req.ReadOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, room)
}

// MessagesHandler serves one of four views of a room timeline:
// ?page=N&pageSize=M pages newest-first, ?after=ID and ?since=MS poll oldest-first,
// otherwise ?limit=&before=ID walks back from the newest message.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	room := r.PathValue("room")
	q := r.URL.Query()

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	var msgs []models.Message
	switch {
	case q.Has("page"):
		var page, pageSize int
		if page, err = queryInt(r, "page", 0); err != nil {
			break
		}
		if pageSize, err = queryInt(r, "pageSize", limit); err != nil {
			break
		}
		msgs, err = a.store.GetMessagesPage(room, page, pageSize)
	case q.Has("after"):
		var after int64
		if after, err = queryInt64Or(r, "after", -1); err != nil {
			break
		}
		msgs, err = a.store.GetMessagesAfter(room, after, limit)
	case q.Has("since"):
		var since int64
		if since, err = queryInt64Or(r, "since", 0); err != nil {
			break
		}
		msgs, err = a.store.GetMessagesSince(room, since, limit)
	default:
		var before *int64
		if before, err = queryInt64(r, "before"); err != nil {
			break
		}
		msgs, err = a.store.GetMessages(room, limit, before)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, viewsOf(msgs))
}

type SendRequest struct {
	Content     string              `json:"content"`
	ReplyTo     *int64              `json:"replyTo,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

func (a *API) SendHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	var req SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := a.store.SendMessage(caller, chat.Draft{
		RoomID:      r.PathValue("room"),
		Content:     req.Content,
		ReplyTo:     req.ReplyTo,
		Attachments: req.Attachments,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if a.metrics != nil {
		a.metrics.MessagesSent.Inc()
	}
	writeJSONStatus(w, http.StatusCreated, viewOf(msg))
}

func (a *API) RoomStatsHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	top, err := queryInt(r, "top", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := a.store.GetRoomStatistics(r.PathValue("room"), top)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (a *API) PinsHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	msgs, err := a.store.GetPinnedMessages(r.PathValue("room"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, viewsOf(msgs))
}

func (a *API) MessageHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	id, err := pathMessageID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := a.store.GetMessageByID(caller, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, viewOf(msg))
}

type EditRequest struct {
	Content string `json:"content"`
}

func (a *API) EditHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	id, err := pathMessageID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req EditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := a.store.EditMessage(caller, id, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, viewOf(msg))
}

func (a *API) DeleteHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	a.messageOp(w, r, caller, a.store.DeleteMessage, "message deleted")
}

func (a *API) PinHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	a.messageOp(w, r, caller, a.store.PinMessage, "message pinned")
}

func (a *API) UnpinHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	a.messageOp(w, r, caller, a.store.UnpinMessage, "message unpinned")
}

func (a *API) messageOp(w http.ResponseWriter, r *http.Request, caller models.Identity,
	op func(caller models.Identity, id int64) error, done string) {
	id, err := pathMessageID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(caller, id); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, done)
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

type ReactionResponse struct {
	Emoji   string `json:"emoji"`
	Present bool   `json:"present"`
}

func (a *API) ReactionHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	id, err := pathMessageID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ReactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	present, err := a.store.ToggleReaction(caller, id, req.Emoji)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ReactionResponse{Emoji: req.Emoji, Present: present})
}

func (a *API) ThreadHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	id, err := pathMessageID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, viewsOf(a.store.GetThread(id)))
}

func (a *API) SearchHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	limit, offset, err := limitOffset(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, viewsOf(a.store.SearchMessages(r.URL.Query().Get("q"), limit, offset)))
}

type StatsResponse struct {
	Messages int `json:"messages"`
	Users    int `json:"users"`
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request, _ models.Identity) {
	writeJSON(w, StatsResponse{Messages: a.store.MessageCount(), Users: a.store.UserCount()})
}

func (a *API) AuditHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := a.store.GetAuditLog(caller, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entries)
}

type ClearResponse struct {
	Removed int `json:"removed"`
}

func (a *API) ClearMessagesHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	n, err := a.store.ClearMessages(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ClearResponse{Removed: n})
}

func (a *API) ClearUsersHandler(w http.ResponseWriter, r *http.Request, caller models.Identity) {
	n, err := a.store.ClearUsers(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ClearResponse{Removed: n})
}
