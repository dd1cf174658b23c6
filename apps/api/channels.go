package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/model"
)

type createChannelRequest struct {
	Name     string                 `json:"name"`
	Kind     model.ChannelKind      `json:"kind"`
	Settings *model.ChannelSettings `json:"settings,omitempty"`
}

type createDirectRequest struct {
	UserID string `json:"user_id"`
}

type addMemberRequest struct {
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role,omitempty"`
}

func (h *Handler) channelID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "channelID"))
	if err != nil {
		return uuid.Nil, apperr.InvalidArg("channel_id must be a uuid")
	}
	return id, nil
}

func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}

	summaries, err := h.svc.ListChannels(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": summaries})
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}

	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}

	ch, err := h.svc.CreateChannel(r.Context(), claims.UserID, req.Name, req.Kind, req.Settings)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *Handler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}

	var req createDirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}
	other, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("user_id must be a uuid"))
		return
	}

	ch, err := h.svc.GetOrCreateDirect(r.Context(), claims.UserID, other)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	channelID, err := h.channelID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}
	target, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("user_id must be a uuid"))
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleMember
	}

	if err := h.svc.AddMember(r.Context(), claims.UserID, channelID, target, role); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	channelID, err := h.channelID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	target, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("user_id must be a uuid"))
		return
	}

	if err := h.svc.RemoveMember(r.Context(), claims.UserID, channelID, target); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	channelID, err := h.channelID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var set model.ChannelSettings
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}

	if err := h.svc.UpdateSettings(r.Context(), claims.UserID, channelID, set); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) ArchiveChannel(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	channelID, err := h.channelID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.svc.ArchiveChannel(r.Context(), claims.UserID, channelID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		writeError(w, h.logger, r, apperr.Unauthenticated("missing session"))
		return
	}
	channelID, err := h.channelID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.svc.DeleteChannel(r.Context(), claims.UserID, channelID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
