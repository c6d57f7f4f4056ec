package ticket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/gateway"
	"github.com/spec-kit/ticket-bot/internal/transcript"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

type fakeGateway struct {
	mu       sync.Mutex
	nextID   int
	channels map[string]gateway.ChannelInfo
	sent     map[string][]gateway.Message
	edits    map[string][]gateway.Message
	dms      map[string][]gateway.Message
	history  map[string][]gateway.HistoryMessage
	deleted  []string
	ops      []string

	createErr  error
	sendErrOn  string
	deleteErr  error
	historyErr error
	dmErr      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		channels: make(map[string]gateway.ChannelInfo),
		sent:     make(map[string][]gateway.Message),
		edits:    make(map[string][]gateway.Message),
		dms:      make(map[string][]gateway.Message),
		history:  make(map[string][]gateway.HistoryMessage),
	}
}

func (f *fakeGateway) CreateChannel(ctx context.Context, guildID string, input gateway.CreateChannelInput) (gateway.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return gateway.ChannelInfo{}, f.createErr
	}
	f.nextID++
	ch := gateway.ChannelInfo{
		ID:       fmt.Sprintf("c%d", f.nextID),
		Name:     input.Name,
		Topic:    input.Topic,
		ParentID: input.ParentID,
		GuildID:  guildID,
	}
	f.channels[ch.ID] = ch
	f.ops = append(f.ops, "create:"+ch.ID)
	return ch, nil
}

func (f *fakeGateway) EditChannel(ctx context.Context, channelID string, edit gateway.ChannelEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("unknown channel %s", channelID)
	}
	if edit.Name != nil {
		ch.Name = *edit.Name
	}
	if edit.Topic != nil {
		ch.Topic = *edit.Topic
	}
	f.channels[channelID] = ch
	f.ops = append(f.ops, "editchan:"+channelID)
	return nil
}

func (f *fakeGateway) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.channels, channelID)
	f.deleted = append(f.deleted, channelID)
	f.ops = append(f.ops, "delete:"+channelID)
	return nil
}

func (f *fakeGateway) ListChannels(ctx context.Context, guildID string) ([]gateway.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gateway.ChannelInfo
	for _, ch := range f.channels {
		if ch.GuildID == guildID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeGateway) Channel(ctx context.Context, channelID string) (gateway.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return gateway.ChannelInfo{}, fmt.Errorf("unknown channel %s", channelID)
	}
	return ch, nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, channelID string, msg gateway.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErrOn != "" && f.sendErrOn == channelID {
		return "", fmt.Errorf("send rejected")
	}
	f.sent[channelID] = append(f.sent[channelID], msg)
	f.nextID++
	f.ops = append(f.ops, "send:"+channelID)
	return fmt.Sprintf("m%d", f.nextID), nil
}

func (f *fakeGateway) EditMessage(ctx context.Context, channelID, messageID string, msg gateway.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := channelID + ":" + messageID
	f.edits[key] = append(f.edits[key], msg)
	f.ops = append(f.ops, "editmsg:"+key)
	return nil
}

func (f *fakeGateway) ChannelHistory(ctx context.Context, channelID string, limit int) ([]gateway.HistoryMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[channelID], nil
}

func (f *fakeGateway) SendDM(ctx context.Context, userID string, msg gateway.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dmErr != nil {
		return f.dmErr
	}
	f.dms[userID] = append(f.dms[userID], msg)
	f.ops = append(f.ops, "dm:"+userID)
	return nil
}

func (f *fakeGateway) opIndex(op string) int {
	for i, o := range f.ops {
		if o == op {
			return i
		}
	}
	return -1
}

type fakeResponder struct {
	notices []string
	prompts []gateway.Message
	updates []gateway.Message
	modals  []gateway.Modal
	acks    int
}

func (r *fakeResponder) Notify(ctx context.Context, content string) error {
	r.notices = append(r.notices, content)
	r.acks++
	return nil
}

func (r *fakeResponder) NotifyMessage(ctx context.Context, msg gateway.Message) error {
	r.prompts = append(r.prompts, msg)
	r.acks++
	return nil
}

func (r *fakeResponder) Update(ctx context.Context, msg gateway.Message) error {
	r.updates = append(r.updates, msg)
	r.acks++
	return nil
}

func (r *fakeResponder) ShowModal(ctx context.Context, modal gateway.Modal) error {
	r.modals = append(r.modals, modal)
	r.acks++
	return nil
}

func (r *fakeResponder) Acknowledged() bool {
	return r.acks > 0
}

const (
	testGuild        = "guild1"
	testStaffRole    = "role-staff"
	testCustomerRole = "role-customer"
	testArchiveChan  = "chan-archive"
)

func testPanel() *config.PanelConfig {
	return &config.PanelConfig{
		EmbedColor:  0xb7ff00,
		Title:       "Support Center",
		Description: "Pick a category.",
		Categories: []domain.Category{
			{Label: "Script Support", Emoji: "🛠️", Value: "support", ParentID: "parent-support", RequiresForm: true, RequiresRole: true},
			{Label: "Claim Role", Emoji: "✅", Value: "role", ParentID: "parent-role"},
			{Label: "Other", Emoji: "✉️", Value: "other", ParentID: "parent-other"},
		},
	}
}

func newTestController(gw *fakeGateway, dedup bool) *Controller {
	return newTestControllerWithIndex(gw, dedup, NewTopicIndex(gw, testGuild))
}

func newTestControllerWithIndex(gw *fakeGateway, dedup bool, idx Index) *Controller {
	discordCfg := config.DiscordConfig{
		GuildID:             testGuild,
		StaffRoleID:         testStaffRole,
		CustomerRoleID:      testCustomerRole,
		TranscriptChannelID: testArchiveChan,
	}
	return NewController(ControllerDependencies{
		Discord:  discordCfg,
		Policy:   config.TicketsConfig{Dedup: dedup},
		Panel:    testPanel(),
		Gateway:  gw,
		Index:    idx,
		Archiver: transcript.NewHTMLArchiver(gw, 100),
		Logger:   zap.NewNop(),
	})
}

// recordingIndex tracks Remove calls on top of a real backend.
type recordingIndex struct {
	Index
	removed []domain.Ticket
}

func (i *recordingIndex) Remove(ctx context.Context, t domain.Ticket) error {
	i.removed = append(i.removed, t)
	return nil
}

func userEvent(kind gateway.EventKind, actorID, actorName string, roles ...string) gateway.Event {
	return gateway.Event{
		Kind:       kind,
		ActorID:    actorID,
		ActorName:  actorName,
		ActorRoles: roles,
		GuildID:    testGuild,
		ChannelID:  "chan-panel",
		MessageID:  "msg-panel",
	}
}

func seedTicket(gw *fakeGateway, channelID string, t domain.Ticket) {
	t.ChannelID = channelID
	gw.channels[channelID] = gateway.ChannelInfo{
		ID:      channelID,
		Name:    "ticket-user",
		Topic:   domain.EncodeTopic(t),
		GuildID: testGuild,
	}
}

func TestPostPanel(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindCommand, "admin1", "admin")
	ev.Command = "panel"
	ev.ActorIsAdmin = true

	require.NoError(t, c.Handle(context.Background(), ev, r))

	require.Len(t, gw.sent["chan-panel"], 1)
	panel := gw.sent["chan-panel"][0]
	require.NotNil(t, panel.Select)
	assert.Equal(t, selectID, panel.Select.ID)
	assert.Len(t, panel.Select.Options, 3)
	assert.Equal(t, "Support Center", panel.Embed.Title)
	assert.Equal(t, []string{"Panel posted."}, r.notices)
	assert.Equal(t, 1, r.acks)
}

func TestPostPanelRequiresAdmin(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindCommand, "user1", "user")
	ev.Command = "panel"

	err := c.Handle(context.Background(), ev, r)
	require.Error(t, err)
	assert.Equal(t, "PERMISSION_DENIED", apperrors.CodeOf(err))
	assert.Empty(t, gw.sent["chan-panel"])
}

func TestSelectUnknownCategory(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindSelect, "user1", "user")
	ev.ComponentID = selectID
	ev.Selected = "nonsense"

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "UNKNOWN_CATEGORY", apperrors.CodeOf(err))
	assert.Empty(t, gw.channels)
}

func TestSelectRoleGatedWithoutRole(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindSelect, "user1", "user")
	ev.ComponentID = selectID
	ev.Selected = "support"

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "FORBIDDEN", apperrors.CodeOf(err))
	assert.Empty(t, gw.channels, "no channel may be created")
	assert.Empty(t, r.modals)
}

func TestSelectDirectProvisioning(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindSelect, "user1", "Some User")
	ev.ComponentID = selectID
	ev.Selected = "other"

	require.NoError(t, c.Handle(context.Background(), ev, r))

	require.Len(t, gw.channels, 1)
	ch := gw.channels["c1"]
	assert.Equal(t, "ticket-some-user", ch.Name)
	assert.Equal(t, "parent-other", ch.ParentID)

	ticket, ok := domain.ParseTopic(ch.ID, ch.Topic)
	require.True(t, ok, "channel topic must carry ticket metadata")
	assert.Equal(t, "user1", ticket.OpenerID)
	assert.Equal(t, "other", ticket.CategoryValue)

	require.Len(t, gw.sent["c1"], 1)
	intro := gw.sent["c1"][0]
	require.Len(t, intro.Buttons, 2)
	assert.Equal(t, claimID, intro.Buttons[0].ID)
	assert.Equal(t, closeID, intro.Buttons[1].ID)
	assert.Contains(t, intro.Content, "<@user1>")

	require.Len(t, r.notices, 1)
	assert.Contains(t, r.notices[0], "<#c1>")
	assert.Equal(t, 1, r.acks, "exactly one acknowledgment")

	// The panel select is re-rendered in place for the next user.
	assert.NotEmpty(t, gw.edits["chan-panel:msg-panel"])
}

func TestSelectDuplicateRejected(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c9", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindSelect, "user1", "user")
	ev.ComponentID = selectID
	ev.Selected = "other"

	err := c.Handle(context.Background(), ev, r)
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_TICKET", apperrors.CodeOf(err))
	assert.Contains(t, apperrors.ToDomainError(err).Message, "<#c9>")
	assert.Len(t, gw.channels, 1, "no second channel")
}

func TestSelectDuplicateAllowedWhenDedupOff(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c9", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	c := newTestController(gw, false)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindSelect, "user1", "user")
	ev.ComponentID = selectID
	ev.Selected = "other"

	require.NoError(t, c.Handle(context.Background(), ev, r))
	assert.Len(t, gw.channels, 2)
}

func TestFormRequiredCategoryShowsModal(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindSelect, "user1", "user", testCustomerRole)
	ev.ComponentID = selectID
	ev.Selected = "support"

	require.NoError(t, c.Handle(context.Background(), ev, r))

	require.Len(t, r.modals, 1)
	modal := r.modals[0]
	assert.Equal(t, formIDPrefix+"support", modal.ID)
	assert.Len(t, modal.Fields, 3)
	assert.Empty(t, gw.channels, "no channel before form submission")

	// Resetting the panel must not depend on the modal interaction.
	assert.NotEmpty(t, gw.edits["chan-panel:msg-panel"])
}

func TestFormSubmitProvisionsWithVerbatimFields(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindModal, "user1", "Customer", testCustomerRole)
	ev.ComponentID = formIDPrefix + "support"
	ev.FormValues = map[string]string{"script": "Foo", "version": "1.2", "framework": "ESX"}

	require.NoError(t, c.Handle(context.Background(), ev, r))

	require.Len(t, gw.channels, 1)
	ch := gw.channels["c1"]
	assert.Equal(t, "parent-support", ch.ParentID)

	require.Len(t, gw.sent["c1"], 1)
	desc := gw.sent["c1"][0].Embed.Description
	assert.Contains(t, desc, "Foo")
	assert.Contains(t, desc, "1.2")
	assert.Contains(t, desc, "ESX")
	assert.Equal(t, 1, r.acks)
}

func TestFormSubmitMissingFieldNeverProvisions(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindModal, "user1", "user", testCustomerRole)
	ev.ComponentID = formIDPrefix + "support"
	ev.FormValues = map[string]string{"script": "Foo", "version": "  ", "framework": "ESX"}

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.CodeOf(err))
	assert.Empty(t, gw.channels)
}

func TestProvisioningFailureLeavesNoPartialTicket(t *testing.T) {
	gw := newFakeGateway()
	gw.createErr = fmt.Errorf("rate limited")
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindSelect, "user1", "user")
	ev.ComponentID = selectID
	ev.Selected = "other"

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "PROVISIONING_FAILED", apperrors.CodeOf(err))
	assert.Empty(t, gw.channels)
}

func TestIntroFailureTearsDownChannel(t *testing.T) {
	gw := newFakeGateway()
	gw.sendErrOn = "c1"
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindSelect, "user1", "user")
	ev.ComponentID = selectID
	ev.Selected = "other"

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "PROVISIONING_FAILED", apperrors.CodeOf(err))
	assert.Empty(t, gw.channels, "orphan channel must be torn down")
	assert.Contains(t, gw.deleted, "c1")
}

func TestConcurrentSameKeyRequestsYieldOneTicket(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)

	ev := userEvent(gateway.KindSelect, "user1", "user")
	ev.ComponentID = selectID
	ev.Selected = "other"

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Handle(context.Background(), ev, &fakeResponder{})
		}(i)
	}
	wg.Wait()

	assert.Len(t, gw.channels, 1, "provisioning is serialized per (opener, category)")
	var dup int
	for _, err := range results {
		if apperrors.CodeOf(err) == "DUPLICATE_TICKET" {
			dup++
		}
	}
	assert.Equal(t, 1, dup)
}

func TestClaimByStaff(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "staff1", "Helper", testStaffRole)
	ev.ComponentID = claimID
	ev.ChannelID = "c1"
	ev.MessageID = "msg-intro"

	require.NoError(t, c.Handle(context.Background(), ev, r))

	ch := gw.channels["c1"]
	assert.True(t, strings.HasPrefix(ch.Name, "claimed-helper-"), "channel renamed with claimant identity, got %q", ch.Name)
	assert.Greater(t, len(ch.Name), len("claimed-helper-"), "randomized suffix expected")

	ticket, ok := domain.ParseTopic("c1", ch.Topic)
	require.True(t, ok)
	assert.Equal(t, "staff1", ticket.ClaimantID)
	assert.Equal(t, domain.TicketStatusClaimed, ticket.Status)

	require.Len(t, r.updates, 1)
	buttons := r.updates[0].Buttons
	require.Len(t, buttons, 2)
	assert.True(t, buttons[0].Disabled, "claim control disabled")
	assert.Contains(t, buttons[0].Label, "Helper")
	assert.Equal(t, closeID, buttons[1].ID)
	assert.False(t, buttons[1].Disabled, "close stays active")

	require.Len(t, gw.sent["c1"], 1)
	assert.Contains(t, gw.sent["c1"][0].Content, "<@staff1>")
	assert.Equal(t, 1, r.acks)
}

func TestClaimByNonStaff(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "user2", "user")
	ev.ComponentID = claimID
	ev.ChannelID = "c1"

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "FORBIDDEN", apperrors.CodeOf(err))
	assert.Equal(t, "ticket-user", gw.channels["c1"].Name, "no rename")
	assert.Empty(t, r.updates)
}

func TestSecondClaimDoesNotCorruptControls(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other", ClaimantID: "staff1"})
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "staff2", "Other Helper", testStaffRole)
	ev.ComponentID = claimID
	ev.ChannelID = "c1"

	require.NoError(t, c.Handle(context.Background(), ev, r))

	assert.Empty(t, r.updates, "components untouched")
	require.Len(t, r.notices, 1)
	assert.Contains(t, r.notices[0], "<@staff1>")
	topic := gw.channels["c1"].Topic
	ticket, _ := domain.ParseTopic("c1", topic)
	assert.Equal(t, "staff1", ticket.ClaimantID, "claimant unchanged")
}

func TestRequestCloseShowsConfirmation(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "user1", "user")
	ev.ComponentID = closeID
	ev.ChannelID = "c1"

	require.NoError(t, c.Handle(context.Background(), ev, r))

	require.Len(t, r.prompts, 1)
	buttons := r.prompts[0].Buttons
	require.Len(t, buttons, 2)
	assert.Equal(t, confirmID, buttons[0].ID)
	assert.Equal(t, cancelID, buttons[1].ID)
	assert.Contains(t, gw.channels, "c1", "ticket not mutated")
}

func TestRequestCloseByOutsider(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "user2", "stranger")
	ev.ComponentID = closeID
	ev.ChannelID = "c1"

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "PERMISSION_DENIED", apperrors.CodeOf(err))
	assert.Empty(t, r.prompts)
}

func TestCancelCloseLeavesTicketUntouched(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "user1", "user")
	ev.ComponentID = cancelID
	ev.ChannelID = "c1"

	require.NoError(t, c.Handle(context.Background(), ev, r))

	require.Len(t, r.updates, 1)
	assert.Empty(t, r.updates[0].Buttons, "confirmation prompt cleared")
	ch := gw.channels["c1"]
	ticket, ok := domain.ParseTopic("c1", ch.Topic)
	require.True(t, ok)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
}

func TestConfirmCloseArchivesBeforeDelete(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	gw.history["c1"] = []gateway.HistoryMessage{
		{AuthorName: "user", Content: "hello", Timestamp: time.Now()},
	}
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "staff1", "Helper", testStaffRole)
	ev.ComponentID = confirmID
	ev.ChannelID = "c1"

	require.NoError(t, c.Handle(context.Background(), ev, r))

	assert.NotContains(t, gw.channels, "c1", "channel deleted")

	require.Len(t, gw.sent[testArchiveChan], 1)
	archive := gw.sent[testArchiveChan][0]
	require.Len(t, archive.Files, 1)
	assert.Contains(t, archive.Files[0].Name, "transcript-")

	archiveAt := gw.opIndex("send:" + testArchiveChan)
	deleteAt := gw.opIndex("delete:c1")
	require.GreaterOrEqual(t, archiveAt, 0)
	require.GreaterOrEqual(t, deleteAt, 0)
	assert.Less(t, archiveAt, deleteAt, "transcript must reach the archive before deletion")

	require.Len(t, gw.dms["user1"], 1, "opener receives a transcript copy")
	require.Len(t, r.updates, 1, "prompt acknowledged first")
}

func TestConfirmCloseArchivalFailurePreventsDeletion(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	gw.sendErrOn = testArchiveChan
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "staff1", "Helper", testStaffRole)
	ev.ComponentID = confirmID
	ev.ChannelID = "c1"

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "ARCHIVER_UNAVAILABLE", apperrors.CodeOf(err))
	assert.Contains(t, gw.channels, "c1", "channel must NOT be deleted")
	assert.Empty(t, gw.deleted)
}

func TestConfirmCloseSwallowsDMFailure(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	gw.dmErr = fmt.Errorf("opener has DMs closed")
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "staff1", "Helper", testStaffRole)
	ev.ComponentID = confirmID
	ev.ChannelID = "c1"

	require.NoError(t, c.Handle(context.Background(), ev, r))
	assert.NotContains(t, gw.channels, "c1", "close completes despite DM failure")
}

func TestConfirmCloseRemovesIndexEntryAfterDelete(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	idx := &recordingIndex{Index: NewTopicIndex(gw, testGuild)}
	c := newTestControllerWithIndex(gw, true, idx)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "staff1", "Helper", testStaffRole)
	ev.ComponentID = confirmID
	ev.ChannelID = "c1"

	require.NoError(t, c.Handle(context.Background(), ev, r))
	require.Len(t, idx.removed, 1)
	assert.Equal(t, "c1", idx.removed[0].ChannelID)
}

func TestConfirmCloseDeleteFailureKeepsIndexEntry(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	gw.deleteErr = fmt.Errorf("missing permission")
	idx := &recordingIndex{Index: NewTopicIndex(gw, testGuild)}
	c := newTestControllerWithIndex(gw, true, idx)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "staff1", "Helper", testStaffRole)
	ev.ComponentID = confirmID
	ev.ChannelID = "c1"

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "INTERNAL_ERROR", apperrors.CodeOf(err))
	assert.Contains(t, gw.channels, "c1", "channel survives the failed deletion")
	assert.Empty(t, idx.removed, "index must still report the ticket as open")
}

func TestConfirmCloseTranscriptFailurePreventsDeletion(t *testing.T) {
	gw := newFakeGateway()
	seedTicket(gw, "c1", domain.Ticket{OpenerID: "user1", CategoryValue: "other"})
	gw.historyErr = fmt.Errorf("history unavailable")
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "staff1", "Helper", testStaffRole)
	ev.ComponentID = confirmID
	ev.ChannelID = "c1"

	err := c.Handle(context.Background(), ev, r)
	assert.Equal(t, "ARCHIVER_UNAVAILABLE", apperrors.CodeOf(err))
	assert.Contains(t, gw.channels, "c1")
}

func TestSanitizeChannelName(t *testing.T) {
	assert.Equal(t, "some-user", sanitizeChannelName("Some User"))
	assert.Equal(t, "jos-42", sanitizeChannelName("José #42"))
	assert.Equal(t, "user", sanitizeChannelName("!!!"))
}

func TestUnknownInteractionIgnored(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(gw, true)
	r := &fakeResponder{}

	ev := userEvent(gateway.KindButton, "user1", "user")
	ev.ComponentID = "somebody_elses_button"

	require.NoError(t, c.Handle(context.Background(), ev, r))
	assert.Zero(t, r.acks)
}
