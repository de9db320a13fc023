package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediationflow/dispute"
	"mediationflow/identity"
	"mediationflow/media"
	"mediationflow/message"
	"mediationflow/presence"
	"mediationflow/session"
)

type handlers struct {
	deps Deps
}

// --- auth ---

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}

	result, err := h.deps.Identity.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user": map[string]any{
			"id":        result.User.ID,
			"email":     result.User.Email,
			"full_name": result.User.FullName,
			"role":      result.User.Role,
		},
	})
}

func (h *handlers) provision(w http.ResponseWriter, r *http.Request) {
	var req identity.ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}

	user, err := h.deps.Identity.Provision(r.Context(), req)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			writeJSONError(w, http.StatusConflict, "email already exists")
			return
		}
		if errors.Is(err, identity.ErrWeakPassword) {
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
	})
}

// --- disputes ---

func (h *handlers) listDisputes(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	records, err := h.deps.Disputes.ListForUser(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"id":          rec.ID,
			"client_id":   rec.ClientID,
			"provider_id": rec.ProviderID,
			"status":      rec.Status,
			"created_at":  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- client config ---

func (h *handlers) clientConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"poll_interval_seconds":      int(h.deps.PollInterval / time.Second),
		"heartbeat_interval_seconds": int(h.deps.HeartbeatInterval / time.Second),
	})
}

// --- session ---

// requireParticipant rejects session requests from users who are neither a
// party to the dispute nor an admin. Without it a stranger's heartbeat would
// count toward the presence quorum of someone else's case.
func (h *handlers) requireParticipant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)
		sessionID := chi.URLParam(r, "sessionID")
		if err := h.deps.Sessions.Authorize(r.Context(), sessionID, actor.UserID); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handlers) ensureSession(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.deps.Sessions.EnsureSession(r.Context(), sessionID, actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDTO(sess))
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.deps.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	gate, err := h.deps.Sessions.Gate(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	dto := sessionDTO(sess)
	dto["gate"] = gateDTO(gate)
	writeJSON(w, http.StatusOK, dto)
}

func (h *handlers) getPresence(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	records, err := h.deps.Presence.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"session_id":     rec.SessionID,
			"user_id":        rec.UserID,
			"role":           rec.Role,
			"is_present":     rec.Present,
			"last_heartbeat": rec.LastHeartbeat,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) heartbeat(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.deps.Presence.Heartbeat(r.Context(), sessionID, actor.UserID, actor.Role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// --- messages ---

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	msgs, err := h.deps.Messages.List(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messageDTO(msg))
	}
	writeJSON(w, http.StatusOK, out)
}

type postMessageRequest struct {
	Type            message.Type `json:"type"`
	Content         string       `json:"content"`
	FileURL         string       `json:"file_url"`
	FileName        string       `json:"file_name"`
	DurationSeconds int          `json:"duration_seconds"`
}

func (h *handlers) postMessage(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sessionID := chi.URLParam(r, "sessionID")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}

	msg, err := h.deps.Messages.Append(r.Context(), message.AppendParams{
		SessionID:       sessionID,
		SenderID:        actor.UserID,
		SenderRole:      actor.Role,
		Type:            req.Type,
		Content:         req.Content,
		FileURL:         req.FileURL,
		FileName:        req.FileName,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageDTO(msg))
}

// --- media ---

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	kind := media.Kind(r.FormValue("kind"))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	stored, err := h.deps.Intake.Store(r.Context(), kind, header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_url":  stored.URL,
		"file_name": stored.Name,
	})
}

// --- pause / decision ---

type pauseRequest struct {
	Value bool `json:"value"`
}

func (h *handlers) pause(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sessionID := chi.URLParam(r, "sessionID")

	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}

	sess, err := h.deps.Sessions.SetPaused(r.Context(), sessionID, actor.UserID, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDTO(sess))
}

type decisionRequest struct {
	Agreed bool `json:"agreed"`
}

func (h *handlers) decision(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	sessionID := chi.URLParam(r, "sessionID")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}

	dec, err := h.deps.Sessions.RecordDecision(r.Context(), sessionID, actor.UserID, req.Agreed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": dec.SessionID,
		"agreed":     dec.Agreed,
		"decided_at": dec.DecidedAt,
	})
}

// --- encoding helpers ---

func sessionDTO(sess session.Session) map[string]any {
	return map[string]any{
		"dispute_id": sess.DisputeID,
		"paused":     sess.Paused,
		"created_at": sess.CreatedAt,
		"decided":    sess.Decided(),
		"decided_at": sess.DecidedAt,
	}
}

func gateDTO(gate session.Gate) map[string]any {
	return map[string]any{
		"phase":          gate.Phase,
		"paused":         gate.Paused,
		"missing":        gate.Missing,
		"can_send":       gate.CanSend,
		"blocked_reason": gate.BlockedReason(),
	}
}

func messageDTO(msg message.Message) map[string]any {
	return map[string]any{
		"id":               msg.ID,
		"session_id":       msg.SessionID,
		"sender_id":        msg.SenderID,
		"sender_role":      msg.SenderRole,
		"type":             msg.Type,
		"content":          msg.Content,
		"file_url":         msg.FileURL,
		"file_name":        msg.FileName,
		"duration_seconds": msg.DurationSeconds,
		"created_at":       msg.CreatedAt.Format(time.RFC3339Nano),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors onto HTTP statuses. Role denials are logged:
// a correctly rendered UI never produces them, so each one is a potential
// integrity signal.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotAdmin),
		errors.Is(err, session.ErrNotClient),
		errors.Is(err, session.ErrNotParticipant):
		log.Printf("httpapi: role denial: %v", err)
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrAlreadyDecided),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, message.ErrEmptyPayload),
		errors.Is(err, message.ErrInvalidType),
		errors.Is(err, message.ErrMissingFile),
		errors.Is(err, message.ErrInvalidDuration),
		errors.Is(err, message.ErrSendBlocked),
		errors.Is(err, media.ErrUnsupportedKind),
		errors.Is(err, media.ErrBadFileType),
		errors.Is(err, media.ErrEmptyName):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrDisputeUnknown),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, presence.ErrSessionUnknown),
		errors.Is(err, identity.ErrUserNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, media.ErrStoreFailed):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("httpapi: internal error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
