package main

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/hivedesk/messaging/pkg/apperr"
)

type setPresenceRequest struct {
	Status string `json:"status"`
}

type setTypingRequest struct {
	ChannelID string `json:"channel_id"`
	IsTyping  bool   `json:"is_typing"`
}

func (h *Handler) SetPresence(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}

	var req setPresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}
	if req.Status != "online" && req.Status != "offline" {
		writeError(w, h.logger, r, apperr.InvalidArg("status must be online or offline"))
		return
	}

	if err := h.presence.Set(r.Context(), claims.UserID, req.Status == "online"); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// GetPresence reports another user's presence. The user_id query parameter
// defaults to the caller.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}

	target := claims.UserID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, h.logger, r, apperr.InvalidArg("user_id must be a uuid"))
			return
		}
		target = id
	}

	p, err := h.presence.Get(r.Context(), target)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) SetTyping(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}

	var req setTypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}
	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("channel_id must be a uuid"))
		return
	}

	isMember, err := h.svc.IsMember(r.Context(), channelID, claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !isMember {
		writeError(w, h.logger, r, apperr.Forbidden("not a channel member"))
		return
	}

	if err := h.typing.Set(r.Context(), channelID, claims.UserID, claims.Name, req.IsTyping); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_typing": req.IsTyping})
}

func (h *Handler) GetTyping(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	channelID, err := queryChannelID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	names, err := h.typing.Active(r.Context(), channelID, claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"typing": names})
}
