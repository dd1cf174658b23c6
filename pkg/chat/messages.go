package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/metrics"
	"github.com/hivedesk/messaging/pkg/model"
	"github.com/hivedesk/messaging/pkg/snowflake"
)

// Send validates, persists, then publishes — in that order, always. The
// returned message is enriched with the sender's display fields and carries
// the sender's own initial read receipt.
func (s *Service) Send(ctx context.Context, channelID, senderID uuid.UUID, body string, attachments []string, kind model.MessageKind) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.InvalidArg("message body is required")
	}
	if kind == "" {
		kind = model.MessageText
	}

	ch, err := s.requireChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.IsArchived {
		return nil, apperr.Forbidden("channel is archived")
	}
	if ch.Settings.ReadOnly {
		return nil, apperr.Forbidden("channel is read-only")
	}
	if len(attachments) > 0 && !ch.Settings.AllowUploads {
		return nil, apperr.Forbidden("uploads are disabled in this channel")
	}

	member, err := s.requireMember(ctx, channelID, senderID)
	if err != nil {
		return nil, err
	}
	if !member.Perms.CanWrite {
		return nil, apperr.Forbidden("missing can_write permission")
	}

	sender, err := s.users.Get(ctx, senderID)
	if err != nil {
		return nil, err
	}

	id := s.node.Generate()
	now := snowflake.Time(id)
	msg := &model.Message{
		ID:          id,
		ChannelID:   channelID,
		SenderID:    senderID,
		Kind:        kind,
		Body:        body,
		Attachments: attachments,
		CreatedAt:   now,
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	// The sender has trivially seen their own message.
	if err := s.messages.MarkRead(ctx, channelID, senderID, []int64{id}, now); err != nil {
		return nil, err
	}
	if err := s.channels.BumpMessageCount(ctx, channelID); err != nil {
		return nil, err
	}
	if err := s.channels.TouchActivity(ctx, channelID, now); err != nil {
		return nil, err
	}

	msg.SenderName = sender.DisplayName()
	msg.SenderAvatar = sender.AvatarURL
	msg.ReadBy = []model.ReadReceipt{{UserID: senderID, ReadAt: now}}

	metrics.MessagesSent.WithLabelValues(string(ch.Kind)).Inc()
	s.publish(ctx, events.NewMessage(msg))
	return msg, nil
}

// History returns up to limit messages in ascending creation order,
// enriched with sender display fields. Only members can read a channel's
// messages.
func (s *Service) History(ctx context.Context, channelID, requesterID uuid.UUID, limit int, beforeID int64) ([]model.Message, error) {
	if _, err := s.requireChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, channelID, requesterID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.List(ctx, channelID, limit, beforeID)
	if err != nil {
		return nil, err
	}

	// Resolve each distinct sender once.
	names := make(map[uuid.UUID]*model.User)
	for i := range msgs {
		u, ok := names[msgs[i].SenderID]
		if !ok {
			u, err = s.users.Get(ctx, msgs[i].SenderID)
			if err != nil {
				if !apperr.Is(err, apperr.CodeNotFound) {
					return nil, err
				}
				u = &model.User{Username: "deleted-user"}
			}
			names[msgs[i].SenderID] = u
		}
		msgs[i].SenderName = u.DisplayName()
		msgs[i].SenderAvatar = u.AvatarURL
	}
	return msgs, nil
}

// MarkRead appends receipts for the given messages, or for everything
// currently unread when ids is empty. Already-read messages are skipped, so
// repeated calls are no-ops; the count of newly marked messages is returned.
func (s *Service) MarkRead(ctx context.Context, channelID, readerID uuid.UUID, ids []int64) (int, error) {
	if _, err := s.requireChannel(ctx, channelID); err != nil {
		return 0, err
	}
	if _, err := s.requireMember(ctx, channelID, readerID); err != nil {
		return 0, err
	}

	readSet, err := s.messages.ReadIDs(ctx, channelID, readerID)
	if err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		ids, err = s.messages.ListIDs(ctx, channelID)
		if err != nil {
			return 0, err
		}
	}

	var fresh []int64
	for _, id := range ids {
		if !readSet[id] {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := s.messages.MarkRead(ctx, channelID, readerID, fresh, time.Now().UTC()); err != nil {
		return 0, err
	}

	metrics.ReadReceipts.Add(float64(len(fresh)))
	s.publish(ctx, events.NotificationsRead(channelID, readerID, fresh))
	return len(fresh), nil
}

// UnreadIDs lists the channel's message IDs with no receipt from the reader,
// in ascending order. Unread badges are a projection of this — there is no
// separately maintained counter to drift.
func (s *Service) UnreadIDs(ctx context.Context, channelID, readerID uuid.UUID) ([]int64, error) {
	if _, err := s.requireMember(ctx, channelID, readerID); err != nil {
		return nil, err
	}

	all, err := s.messages.ListIDs(ctx, channelID)
	if err != nil {
		return nil, err
	}
	readSet, err := s.messages.ReadIDs(ctx, channelID, readerID)
	if err != nil {
		return nil, err
	}

	var unread []int64
	for _, id := range all {
		if !readSet[id] {
			unread = append(unread, id)
		}
	}
	return unread, nil
}

// EditMessage keeps history append-only: the superseded body goes into the
// revision list and the row gets the new body plus an edited_at marker.
// Only the original sender can edit.
func (s *Service) EditMessage(ctx context.Context, channelID uuid.UUID, messageID int64, editorID uuid.UUID, newBody string) (*model.Message, error) {
	newBody = strings.TrimSpace(newBody)
	if newBody == "" {
		return nil, apperr.InvalidArg("message body is required")
	}

	if _, err := s.requireChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, channelID, editorID); err != nil {
		return nil, err
	}

	msg, err := s.messages.Get(ctx, channelID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, apperr.NotFound("message not found")
	}
	if msg.SenderID != editorID {
		return nil, apperr.Forbidden("only the sender can edit a message")
	}

	now := time.Now().UTC()
	if err := s.messages.AddRevision(ctx, channelID, messageID, msg.Body, now); err != nil {
		return nil, err
	}
	if err := s.messages.UpdateBody(ctx, channelID, messageID, newBody, now); err != nil {
		return nil, err
	}

	msg.Body = newBody
	msg.EditedAt = &now
	if sender, err := s.users.Get(ctx, editorID); err == nil {
		msg.SenderName = sender.DisplayName()
		msg.SenderAvatar = sender.AvatarURL
	}

	// Same envelope type as a send; clients replace by message ID.
	s.publish(ctx, events.NewMessage(msg))
	return msg, nil
}

// Revisions lists a message's superseded bodies, newest first.
func (s *Service) Revisions(ctx context.Context, channelID uuid.UUID, messageID int64, requesterID uuid.UUID) ([]model.Revision, error) {
	if _, err := s.requireMember(ctx, channelID, requesterID); err != nil {
		return nil, err
	}
	if _, err := s.messages.Get(ctx, channelID, messageID); err != nil {
		return nil, err
	}
	return s.messages.Revisions(ctx, channelID, messageID)
}

// DeleteMessage tombstones. The sender may delete their own message; anyone
// with can_delete_messages may delete any message.
func (s *Service) DeleteMessage(ctx context.Context, channelID uuid.UUID, messageID int64, actorID uuid.UUID) error {
	if _, err := s.requireChannel(ctx, channelID); err != nil {
		return err
	}
	actor, err := s.requireMember(ctx, channelID, actorID)
	if err != nil {
		return err
	}

	msg, err := s.messages.Get(ctx, channelID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actorID && !actor.Perms.CanDeleteMessages {
		return apperr.Forbidden("missing can_delete_messages permission")
	}
	return s.messages.Tombstone(ctx, channelID, messageID)
}

// ToggleReaction flips the (emoji, user) pair on a message and reports
// whether it is now set. Reapplying the same reaction removes it.
func (s *Service) ToggleReaction(ctx context.Context, channelID uuid.UUID, messageID int64, userID uuid.UUID, emoji string) (bool, error) {
	if emoji == "" {
		return false, apperr.InvalidArg("emoji is required")
	}

	ch, err := s.requireChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	if !ch.Settings.AllowReactions {
		return false, apperr.Forbidden("reactions are disabled in this channel")
	}
	if _, err := s.requireMember(ctx, channelID, userID); err != nil {
		return false, err
	}
	if _, err := s.messages.Get(ctx, channelID, messageID); err != nil {
		return false, err
	}

	return s.messages.ToggleReaction(ctx, channelID, messageID, emoji, userID)
}

// Readers returns the receipts for one message, for "seen by" indicators.
func (s *Service) Readers(ctx context.Context, channelID uuid.UUID, messageID int64, requesterID uuid.UUID) ([]model.ReadReceipt, error) {
	if _, err := s.requireMember(ctx, channelID, requesterID); err != nil {
		return nil, err
	}
	return s.messages.Readers(ctx, channelID, messageID)
}

// IsMember reports membership; the gateway uses it to guard room joins.
func (s *Service) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	_, err := s.channels.Member(ctx, channelID, userID)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// User exposes the directory for callers that need display fields.
func (s *Service) User(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.Get(ctx, id)
}
