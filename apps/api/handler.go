package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/auth"
	"github.com/hivedesk/messaging/pkg/chat"
	"github.com/hivedesk/messaging/pkg/model"
	"github.com/hivedesk/messaging/pkg/presence"
	"github.com/hivedesk/messaging/pkg/store"
	"github.com/hivedesk/messaging/pkg/typing"
)

type Handler struct {
	svc      *chat.Service
	presence *presence.Tracker
	typing   *typing.Registry
	tokens   *auth.Manager
	users    *store.UserStore
	logger   zerolog.Logger
}

type loginRequest struct {
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Login mints a session token. This stands in for the platform's real
// session facility: an existing user_id is looked up, otherwise a directory
// record is created from the supplied profile fields.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, r, apperr.InvalidArg("invalid request body"))
		return
	}

	var user *model.User
	switch {
	case req.UserID != "":
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, h.logger, r, apperr.InvalidArg("user_id must be a uuid"))
			return
		}
		user, err = h.users.Get(r.Context(), id)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
	case req.Username != "":
		user = &model.User{
			ID:         uuid.New(),
			Username:   req.Username,
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Email:      req.Email,
			IsActive:   true,
			LastActive: time.Now().UTC(),
		}
		if err := h.users.Upsert(r.Context(), user); err != nil {
			writeError(w, h.logger, r, err)
			return
		}
	default:
		writeError(w, h.logger, r, apperr.InvalidArg("user_id or username is required"))
		return
	}

	token, err := h.tokens.Generate(user.ID, user.DisplayName())
	if err != nil {
		writeError(w, h.logger, r, apperr.Internal("token generation failed", err))
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}
