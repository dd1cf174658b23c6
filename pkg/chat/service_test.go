package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/model"
	"github.com/hivedesk/messaging/pkg/snowflake"
)

type fixture struct {
	svc      *Service
	channels *fakeChannelStore
	messages *fakeMessageStore
	dir      *fakeDirectory
	pub      *capturePublisher

	alice, bob, carol *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	alice := &model.User{ID: uuid.New(), Username: "alice", FirstName: "Alice", LastName: "Archer", IsActive: true}
	bob := &model.User{ID: uuid.New(), Username: "bob", FirstName: "Bob", LastName: "Baker", IsActive: true}
	carol := &model.User{ID: uuid.New(), Username: "carol", IsActive: true}

	channels := newFakeChannelStore()
	messages := newFakeMessageStore()
	dir := newFakeDirectory(alice, bob, carol)
	pub := &capturePublisher{}

	return &fixture{
		svc:      NewService(channels, messages, dir, node, pub, zerolog.Nop()),
		channels: channels,
		messages: messages,
		dir:      dir,
		pub:      pub,
		alice:    alice,
		bob:      bob,
		carol:    carol,
	}
}

func (f *fixture) groupChannel(t *testing.T, members ...*model.User) *model.Channel {
	t.Helper()
	ch, err := f.svc.CreateChannel(context.Background(), f.alice.ID, "Lounge", model.KindPublic, nil)
	require.NoError(t, err)
	for _, u := range members {
		require.NoError(t, f.svc.AddMember(context.Background(), f.alice.ID, ch.ID, u.ID, model.RoleMember))
	}
	return ch
}

func TestSendPersistsAndEnriches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	msg, err := f.svc.Send(ctx, ch.ID, f.alice.ID, "hello", nil, "")
	require.NoError(t, err)

	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, model.MessageText, msg.Kind)
	assert.Equal(t, "Alice Archer", msg.SenderName)
	require.Len(t, msg.ReadBy, 1, "sender must be in the initial read list")
	assert.Equal(t, f.alice.ID, msg.ReadBy[0].UserID)

	got, err := f.channels.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.MessageCount)
	assert.Equal(t, msg.CreatedAt, got.LastActivity)

	// Persist happened before publish, and the envelope carries the message.
	published := f.pub.byType(events.TypeNewMessage)
	require.Len(t, published, 1)
	assert.Equal(t, msg.ID, published[0].Message.ID)
}

func TestSendRejectsNonMember(t *testing.T) {
	f := newFixture(t)
	ch := f.groupChannel(t)

	_, err := f.svc.Send(context.Background(), ch.ID, f.bob.ID, "hi", nil, "")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "got %v", err)
}

func TestSendRejectsEmptyBody(t *testing.T) {
	f := newFixture(t)
	ch := f.groupChannel(t)

	_, err := f.svc.Send(context.Background(), ch.ID, f.alice.ID, "   \n\t ", nil, "")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), "got %v", err)
}

func TestSendRejectsMissingChannel(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), uuid.New(), f.alice.ID, "hi", nil, "")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound), "got %v", err)
}

func TestSendRejectsDeletedChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t)
	require.NoError(t, f.svc.DeleteChannel(ctx, f.alice.ID, ch.ID))

	_, err := f.svc.Send(ctx, ch.ID, f.alice.ID, "hi", nil, "")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound), "got %v", err)
}

func TestSendRespectsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	set := ch.Settings
	set.ReadOnly = true
	require.NoError(t, f.svc.UpdateSettings(ctx, f.alice.ID, ch.ID, set))

	_, err := f.svc.Send(ctx, ch.ID, f.bob.ID, "hi", nil, "")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "got %v", err)
}

func TestHistoryOrderingAscending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	for i := 0; i < 10; i++ {
		_, err := f.svc.Send(ctx, ch.ID, f.alice.ID, fmt.Sprintf("msg-%d", i), nil, "")
		require.NoError(t, err)
	}

	msgs, err := f.svc.History(ctx, ch.ID, f.bob.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].ID, msgs[i].ID)
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
	assert.Equal(t, "msg-0", msgs[0].Body)
	assert.Equal(t, "msg-9", msgs[9].Body)
}

func TestHistoryForbiddenForNonMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t)
	_, err := f.svc.Send(ctx, ch.ID, f.alice.ID, "secret", nil, "")
	require.NoError(t, err)

	_, err = f.svc.History(ctx, ch.ID, f.bob.ID, 50, 0)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "got %v", err)
}

func TestMarkReadIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	var ids []int64
	for i := 0; i < 3; i++ {
		msg, err := f.svc.Send(ctx, ch.ID, f.alice.ID, "hello", nil, "")
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	n, err := f.svc.MarkRead(ctx, ch.ID, f.bob.ID, ids)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Same call again marks nothing and duplicates no receipts.
	n, err = f.svc.MarkRead(ctx, ch.ID, f.bob.ID, ids)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	readers, err := f.svc.Readers(ctx, ch.ID, ids[0], f.bob.ID)
	require.NoError(t, err)
	assert.Len(t, readers, 2, "sender + bob, no duplicates")
}

func TestMarkReadAllWhenIDsOmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	for i := 0; i < 4; i++ {
		_, err := f.svc.Send(ctx, ch.ID, f.alice.ID, "hello", nil, "")
		require.NoError(t, err)
	}

	n, err := f.svc.MarkRead(ctx, ch.ID, f.bob.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	unread, err := f.svc.UnreadIDs(ctx, ch.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Empty(t, unread)

	read := f.pub.byType(events.TypeNotificationsRead)
	require.Len(t, read, 1)
	assert.Equal(t, 4, read[0].ReadCount)
}

func TestUnreadExcludesOwnMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	_, err := f.svc.Send(ctx, ch.ID, f.alice.ID, "from alice", nil, "")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, ch.ID, f.bob.ID, "from bob", nil, "")
	require.NoError(t, err)

	unread, err := f.svc.UnreadIDs(ctx, ch.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Len(t, unread, 1, "bob's own message carries his receipt already")
}

func TestGetOrCreateDirectBothDirections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch1, err := f.svc.GetOrCreateDirect(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	ch2, err := f.svc.GetOrCreateDirect(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)

	assert.Equal(t, ch1.ID, ch2.ID)
	assert.Equal(t, model.KindDirect, ch1.Kind)

	members, err := f.channels.Members(ctx, ch1.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestGetOrCreateDirectConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 16
	results := make([]uuid.UUID, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := f.alice.ID, f.bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			ch, err := f.svc.GetOrCreateDirect(ctx, a, b)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = ch.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i], "every caller must land on one channel")
	}
}

func TestGetOrCreateDirectSelf(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetOrCreateDirect(context.Background(), f.alice.ID, f.alice.ID)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), "got %v", err)
}

func TestListChannelsAnnotatesDirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dm, err := f.svc.GetOrCreateDirect(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	group := f.groupChannel(t, f.bob)

	_, err = f.svc.Send(ctx, dm.ID, f.bob.ID, "hey alice", nil, "")
	require.NoError(t, err)

	list, err := f.svc.ListChannels(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[uuid.UUID]model.ChannelSummary{}
	for _, s := range list {
		byID[s.ID] = s
	}
	assert.Equal(t, "Bob Baker", byID[dm.ID].DisplayName, "DM shows the other member's name")
	assert.Equal(t, "Lounge", byID[group.ID].DisplayName)
	assert.Equal(t, 1, byID[dm.ID].UnreadCount)
	assert.Equal(t, 0, byID[group.ID].UnreadCount)
}

func TestListChannelsExcludesArchivedAndDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	archived := f.groupChannel(t)
	require.NoError(t, f.svc.ArchiveChannel(ctx, f.alice.ID, archived.ID))

	deleted, err := f.svc.CreateChannel(ctx, f.alice.ID, "Old", model.KindPrivate, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteChannel(ctx, f.alice.ID, deleted.ID))

	list, err := f.svc.ListChannels(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAddMemberConflictsAndLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	err := f.svc.AddMember(ctx, f.alice.ID, ch.ID, f.bob.ID, model.RoleMember)
	assert.True(t, apperr.Is(err, apperr.CodeConflict), "got %v", err)

	set := ch.Settings
	set.MaxMembers = 2
	require.NoError(t, f.svc.UpdateSettings(ctx, f.alice.ID, ch.ID, set))

	err = f.svc.AddMember(ctx, f.alice.ID, ch.ID, f.carol.ID, model.RoleMember)
	assert.True(t, apperr.Is(err, apperr.CodeConflict), "got %v", err)
}

func TestAddMemberRequiresPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	// Bob joined as a plain member: can write, cannot add members.
	err := f.svc.AddMember(ctx, f.bob.ID, ch.ID, f.carol.ID, model.RoleMember)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "got %v", err)
}

func TestRemoveMemberSelfAndModeration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob, f.carol)

	// Members can leave on their own.
	require.NoError(t, f.svc.RemoveMember(ctx, f.bob.ID, ch.ID, f.bob.ID))

	// But cannot remove others without can_moderate.
	err := f.svc.RemoveMember(ctx, f.carol.ID, ch.ID, f.alice.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "got %v", err)

	// The admin can.
	require.NoError(t, f.svc.RemoveMember(ctx, f.alice.ID, ch.ID, f.carol.ID))
}

func TestEditMessageKeepsRevisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	msg, err := f.svc.Send(ctx, ch.ID, f.alice.ID, "first draft", nil, "")
	require.NoError(t, err)

	edited, err := f.svc.EditMessage(ctx, ch.ID, msg.ID, f.alice.ID, "final version")
	require.NoError(t, err)
	assert.Equal(t, "final version", edited.Body)
	require.NotNil(t, edited.EditedAt)

	revs, err := f.svc.Revisions(ctx, ch.ID, msg.ID, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, "first draft", revs[0].Body, "history is append-only")

	// Only the sender can edit.
	_, err = f.svc.EditMessage(ctx, ch.ID, msg.ID, f.bob.ID, "hijacked")
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "got %v", err)
}

func TestDeleteMessageTombstones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	msg, err := f.svc.Send(ctx, ch.ID, f.alice.ID, "oops", nil, "")
	require.NoError(t, err)

	// Bob has no can_delete_messages and is not the sender.
	err = f.svc.DeleteMessage(ctx, ch.ID, msg.ID, f.bob.ID)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden), "got %v", err)

	require.NoError(t, f.svc.DeleteMessage(ctx, ch.ID, msg.ID, f.alice.ID))

	msgs, err := f.svc.History(ctx, ch.ID, f.bob.ID, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "tombstoned messages leave default listings")
}

func TestToggleReactionIdempotentPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.groupChannel(t, f.bob)

	msg, err := f.svc.Send(ctx, ch.ID, f.alice.ID, "react to me", nil, "")
	require.NoError(t, err)

	on, err := f.svc.ToggleReaction(ctx, ch.ID, msg.ID, f.bob.ID, "thumbsup")
	require.NoError(t, err)
	assert.True(t, on)

	// Same (emoji, user) pair toggles off instead of duplicating.
	on, err = f.svc.ToggleReaction(ctx, ch.ID, msg.ID, f.bob.ID, "thumbsup")
	require.NoError(t, err)
	assert.False(t, on)

	reactions, err := f.messages.Reactions(ctx, ch.ID, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, reactions)
}

func TestCreateChannelValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateChannel(ctx, f.alice.ID, "  ", model.KindPublic, nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), "got %v", err)

	_, err = f.svc.CreateChannel(ctx, f.alice.ID, "x", model.KindDirect, nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), "got %v", err)

	_, err = f.svc.CreateChannel(ctx, f.alice.ID, "x", "bogus", nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument), "got %v", err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "member-lounge", slugify("Member Lounge"))
	assert.Equal(t, "deal-room-2", slugify("  Deal Room #2! "))
	assert.Equal(t, "caf", slugify("café"))
}
