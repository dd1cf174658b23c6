package chat

// In-memory stand-ins for the store interfaces. They mirror the semantics
// the scylla stores provide: LWT-style create-if-absent for members and DM
// pairs, upsert read receipts, and ascending message order.

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/events"
	"github.com/hivedesk/messaging/pkg/model"
)

type memberKey struct {
	channel uuid.UUID
	user    uuid.UUID
}

type fakeChannelStore struct {
	mu       sync.Mutex
	channels map[uuid.UUID]*model.Channel
	members  map[memberKey]*model.Member
	dmPairs  map[string]uuid.UUID
	counts   map[uuid.UUID]int64
}

func newFakeChannelStore() *fakeChannelStore {
	return &fakeChannelStore{
		channels: make(map[uuid.UUID]*model.Channel),
		members:  make(map[memberKey]*model.Member),
		dmPairs:  make(map[string]uuid.UUID),
		counts:   make(map[uuid.UUID]int64),
	}
}

func (f *fakeChannelStore) Create(_ context.Context, ch *model.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ch
	f.channels[ch.ID] = &cp
	return nil
}

func (f *fakeChannelStore) Get(_ context.Context, id uuid.UUID) (*model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return nil, apperr.NotFound("channel not found")
	}
	cp := *ch
	cp.MessageCount = f.counts[id]
	return &cp, nil
}

func (f *fakeChannelStore) LookupDirect(_ context.Context, a, b uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.dmPairs[model.DirectPairKey(a, b)]
	if !ok {
		return uuid.Nil, apperr.NotFound("direct channel not found")
	}
	return id, nil
}

func (f *fakeChannelStore) ClaimDirectPair(_ context.Context, a, b uuid.UUID, channelID uuid.UUID) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := model.DirectPairKey(a, b)
	if existing, ok := f.dmPairs[key]; ok {
		return existing, false, nil
	}
	f.dmPairs[key] = channelID
	return channelID, true, nil
}

func (f *fakeChannelStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
	return nil
}

func (f *fakeChannelStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[id]; ok {
		ch.IsDeleted = true
	}
	return nil
}

func (f *fakeChannelStore) Archive(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[id]; ok {
		ch.IsArchived = true
	}
	return nil
}

func (f *fakeChannelStore) UpdateSettings(_ context.Context, id uuid.UUID, set model.ChannelSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[id]; ok {
		ch.Settings = set
	}
	return nil
}

func (f *fakeChannelStore) TouchActivity(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.channels[id]; ok {
		ch.LastActivity = at
	}
	return nil
}

func (f *fakeChannelStore) BumpMessageCount(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[id]++
	return nil
}

func (f *fakeChannelStore) AddMember(_ context.Context, m model.Member) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := memberKey{m.ChannelID, m.UserID}
	if _, ok := f.members[key]; ok {
		return false, nil
	}
	cp := m
	f.members[key] = &cp
	return true, nil
}

func (f *fakeChannelStore) RemoveMember(_ context.Context, channelID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, memberKey{channelID, userID})
	return nil
}

func (f *fakeChannelStore) Member(_ context.Context, channelID, userID uuid.UUID) (*model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberKey{channelID, userID}]
	if !ok {
		return nil, apperr.NotFound("not a member")
	}
	cp := *m
	return &cp, nil
}

func (f *fakeChannelStore) Members(_ context.Context, channelID uuid.UUID) ([]model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Member
	for key, m := range f.members {
		if key.channel == channelID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeChannelStore) ChannelIDsForUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for key := range f.members {
		if key.user == userID {
			out = append(out, key.channel)
		}
	}
	return out, nil
}

type readKey struct {
	channel uuid.UUID
	message int64
	user    uuid.UUID
}

type reactionKey struct {
	channel uuid.UUID
	message int64
	emoji   string
	user    uuid.UUID
}

type fakeMessageStore struct {
	mu        sync.Mutex
	messages  map[uuid.UUID][]*model.Message
	reads     map[readKey]time.Time
	reactions map[reactionKey]bool
	revisions map[uuid.UUID]map[int64][]model.Revision
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		messages:  make(map[uuid.UUID][]*model.Message),
		reads:     make(map[readKey]time.Time),
		reactions: make(map[reactionKey]bool),
		revisions: make(map[uuid.UUID]map[int64][]model.Revision),
	}
}

func (f *fakeMessageStore) Insert(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.messages[m.ChannelID] = append(f.messages[m.ChannelID], &cp)
	sort.Slice(f.messages[m.ChannelID], func(i, j int) bool {
		return f.messages[m.ChannelID][i].ID < f.messages[m.ChannelID][j].ID
	})
	return nil
}

func (f *fakeMessageStore) find(channelID uuid.UUID, id int64) *model.Message {
	for _, m := range f.messages[channelID] {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (f *fakeMessageStore) Get(_ context.Context, channelID uuid.UUID, id int64) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.find(channelID, id)
	if m == nil {
		return nil, apperr.NotFound("message not found")
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessageStore) List(_ context.Context, channelID uuid.UUID, limit int, beforeID int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var all []model.Message
	for _, m := range f.messages[channelID] {
		if m.IsDeleted {
			continue
		}
		if beforeID > 0 && m.ID >= beforeID {
			continue
		}
		all = append(all, *m)
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (f *fakeMessageStore) ListIDs(_ context.Context, channelID uuid.UUID) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, m := range f.messages[channelID] {
		if !m.IsDeleted {
			out = append(out, m.ID)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) UpdateBody(_ context.Context, channelID uuid.UUID, id int64, body string, editedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m := f.find(channelID, id); m != nil {
		m.Body = body
		t := editedAt
		m.EditedAt = &t
	}
	return nil
}

func (f *fakeMessageStore) AddRevision(_ context.Context, channelID uuid.UUID, id int64, body string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revisions[channelID] == nil {
		f.revisions[channelID] = make(map[int64][]model.Revision)
	}
	f.revisions[channelID][id] = append([]model.Revision{{RevisedAt: at, Body: body}}, f.revisions[channelID][id]...)
	return nil
}

func (f *fakeMessageStore) Revisions(_ context.Context, channelID uuid.UUID, id int64) ([]model.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revisions[channelID][id], nil
}

func (f *fakeMessageStore) Tombstone(_ context.Context, channelID uuid.UUID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m := f.find(channelID, id); m != nil {
		m.IsDeleted = true
	}
	return nil
}

func (f *fakeMessageStore) ToggleReaction(_ context.Context, channelID uuid.UUID, id int64, emoji string, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := reactionKey{channelID, id, emoji, userID}
	if f.reactions[key] {
		delete(f.reactions, key)
		return false, nil
	}
	f.reactions[key] = true
	return true, nil
}

func (f *fakeMessageStore) Reactions(_ context.Context, channelID uuid.UUID, id int64) ([]model.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reaction
	for key := range f.reactions {
		if key.channel == channelID && key.message == id {
			out = append(out, model.Reaction{Emoji: key.emoji, UserID: key.user})
		}
	}
	return out, nil
}

func (f *fakeMessageStore) MarkRead(_ context.Context, channelID uuid.UUID, readerID uuid.UUID, ids []int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		key := readKey{channelID, id, readerID}
		if _, ok := f.reads[key]; !ok {
			f.reads[key] = at
		}
	}
	return nil
}

func (f *fakeMessageStore) ReadIDs(_ context.Context, channelID, readerID uuid.UUID) (map[int64]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]bool)
	for key := range f.reads {
		if key.channel == channelID && key.user == readerID {
			out[key.message] = true
		}
	}
	return out, nil
}

func (f *fakeMessageStore) Readers(_ context.Context, channelID uuid.UUID, id int64) ([]model.ReadReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ReadReceipt
	for key, at := range f.reads {
		if key.channel == channelID && key.message == id {
			out = append(out, model.ReadReceipt{UserID: key.user, ReadAt: at})
		}
	}
	return out, nil
}

type fakeDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newFakeDirectory(users ...*model.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (f *fakeDirectory) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

type capturePublisher struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (c *capturePublisher) Publish(_ context.Context, env events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
	return nil
}

func (c *capturePublisher) byType(t events.Type) []events.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Envelope
	for _, env := range c.envs {
		if env.Event == t {
			out = append(out, env)
		}
	}
	return out
}
