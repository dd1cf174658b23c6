package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/model"
)

type sendMessageRequest struct {
	ChannelID   string            `json:"channel_id"`
	Body        string            `json:"body"`
	Kind        model.MessageKind `json:"kind,omitempty"`
	Attachments []string          `json:"attachments,omitempty"`
}

type markReadRequest struct {
	ChannelID  string  `json:"channel_id"`
	MessageIDs []int64 `json:"message_ids,omitempty"`
}

type editMessageRequest struct {
	ChannelID string `json:"channel_id"`
	Body      string `json:"body"`
}

type reactionRequest struct {
	ChannelID string `json:"channel_id"`
	Emoji     string `json:"emoji"`
}

func (h *Handler) messageID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		return 0, apperr.InvalidArg("message_id must be an integer")
	}
	return id, nil
}

func queryChannelID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.URL.Query().Get("channel_id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidArg("channel_id must be a uuid")
	}
	return id, nil
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
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

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	var beforeID int64
	if raw := r.URL.Query().Get("before_id"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.svc.History(r.Context(), channelID, claims.UserID, limit, beforeID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}
	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("channel_id must be a uuid"))
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = model.MessageText
	}

	msg, err := h.svc.Send(r.Context(), channelID, claims.UserID, req.Body, req.Attachments, kind)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}
	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("channel_id must be a uuid"))
		return
	}

	count, err := h.svc.MarkRead(r.Context(), channelID, claims.UserID, req.MessageIDs)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": count})
}

func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
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

	ids, err := h.svc.UnreadIDs(r.Context(), channelID, claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(ids), "message_ids": ids})
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	messageID, err := h.messageID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}
	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("channel_id must be a uuid"))
		return
	}

	msg, err := h.svc.EditMessage(r.Context(), channelID, messageID, claims.UserID, req.Body)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	messageID, err := h.messageID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	channelID, err := queryChannelID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.svc.DeleteMessage(r.Context(), channelID, messageID, claims.UserID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	messageID, err := h.messageID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}
	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("channel_id must be a uuid"))
		return
	}

	set, err := h.svc.ToggleReaction(r.Context(), channelID, messageID, claims.UserID, req.Emoji)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reacted": set})
}

func (h *Handler) Readers(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	messageID, err := h.messageID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	channelID, err := queryChannelID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	readers, err := h.svc.Readers(r.Context(), channelID, messageID, claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if readers == nil {
		readers = []model.ReadReceipt{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"readers": readers})
}

func (h *Handler) Revisions(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	messageID, err := h.messageID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	channelID, err := queryChannelID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	revs, err := h.svc.Revisions(r.Context(), channelID, messageID, claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if revs == nil {
		revs = []model.Revision{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"revisions": revs})
}
