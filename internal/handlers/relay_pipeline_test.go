package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temanrandom/menfesbot/internal/config"
	"github.com/temanrandom/menfesbot/internal/db"
	"github.com/temanrandom/menfesbot/internal/observability"
	"github.com/temanrandom/menfesbot/internal/ratelimit"
	"github.com/temanrandom/menfesbot/internal/telegram"
)

type serviceStub struct {
	db   db.Client
	lang string
}

var errTransportDown = errors.New("transport down")

func (s *serviceStub) GetBot() *api.BotAPI          { return nil }
func (s *serviceStub) GetOps() *telegram.Operations { return nil }
func (s *serviceStub) GetDB() db.Client             { return s.db }
func (s *serviceStub) GetLanguage() string          { return s.lang }

type dbStub struct {
	mu     sync.Mutex
	banned map[int64]bool
	kv     map[string]string
	err    error
}

func newDBStub() *dbStub {
	return &dbStub{banned: make(map[int64]bool), kv: make(map[string]string)}
}

func (d *dbStub) Close() error { return nil }

func (d *dbStub) IsBlacklisted(_ context.Context, userID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	return d.banned[userID], nil
}

func (d *dbStub) AddToBlacklist(_ context.Context, userID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.banned[userID] {
		return false, nil
	}
	d.banned[userID] = true
	return true, nil
}

func (d *dbStub) GetKV(_ context.Context, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	value, ok := d.kv[key]
	if !ok {
		return "", db.ErrNotFound
	}
	return value, nil
}

func (d *dbStub) SetKV(_ context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kv[key] = value
	return nil
}

type sentVideo struct {
	chat    telegram.ChatRef
	fileID  string
	caption string
	markup  *api.InlineKeyboardMarkup
}

type captionEdit struct {
	messageID int
	caption   string
	markup    *api.InlineKeyboardMarkup
}

type transportRecorder struct {
	mu        sync.Mutex
	messages  []string
	htmls     []string
	markups   []*api.InlineKeyboardMarkup
	videos    []sentVideo
	edits     []captionEdit
	textEdits []string
	answers   []string
	videoErr  error
}

func (tp *transportRecorder) SendMessage(_ context.Context, _ int64, text string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.messages = append(tp.messages, text)
	return nil
}

func (tp *transportRecorder) SendHTML(_ context.Context, _ int64, text string, markup *api.InlineKeyboardMarkup) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.htmls = append(tp.htmls, text)
	tp.markups = append(tp.markups, markup)
	return nil
}

func (tp *transportRecorder) SendVideo(_ context.Context, chat telegram.ChatRef, fileID, caption string, markup *api.InlineKeyboardMarkup) (int, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.videoErr != nil {
		return 0, tp.videoErr
	}
	tp.videos = append(tp.videos, sentVideo{chat: chat, fileID: fileID, caption: caption, markup: markup})
	return 9000 + len(tp.videos), nil
}

func (tp *transportRecorder) EditCaption(_ context.Context, _ int64, messageID int, caption string, markup *api.InlineKeyboardMarkup) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.edits = append(tp.edits, captionEdit{messageID: messageID, caption: caption, markup: markup})
	return nil
}

func (tp *transportRecorder) EditMessageText(_ context.Context, _ int64, _ int, text string, _ *api.InlineKeyboardMarkup) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.textEdits = append(tp.textEdits, text)
	return nil
}

func (tp *transportRecorder) AnswerCallback(_ context.Context, _ string, text string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.answers = append(tp.answers, text)
	return nil
}

func (tp *transportRecorder) lastHTML(t *testing.T) string {
	t.Helper()
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if len(tp.htmls) == 0 {
		t.Fatal("no html messages sent")
	}
	return tp.htmls[len(tp.htmls)-1]
}

type gateStub struct {
	mu     sync.Mutex
	calls  int
	member map[int64]bool
}

func (g *gateStub) IsMember(_ context.Context, _ int64, ref telegram.ChatRef) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.member[ref.ID]
}

type refsStub struct {
	channel telegram.ChatRef
	group   telegram.ChatRef
}

func (r *refsStub) ChannelRef() telegram.ChatRef { return r.channel }
func (r *refsStub) GroupRef() telegram.ChatRef   { return r.group }

type auditStub struct {
	mu      sync.Mutex
	infos   []string
	errors  []string
	reports []string
}

func (a *auditStub) Info(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.infos = append(a.infos, fmt.Sprintf(format, args...))
}

func (a *auditStub) Error(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, fmt.Sprintf(format, args...))
}

func (a *auditStub) Report(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, text)
}

type relayFixture struct {
	relay *Relay
	tp    *transportRecorder
	db    *dbStub
	gate  *gateStub
	audit *auditStub
	now   time.Time
}

const (
	testChannelID int64 = -1001000000001
	testGroupID   int64 = -1001000000002
)

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	dbc := newDBStub()
	tp := &transportRecorder{}
	gate := &gateStub{member: map[int64]bool{testChannelID: true, testGroupID: true}}
	refs := &refsStub{
		channel: telegram.ChatRef{ID: testChannelID, Username: "menfeschannel"},
		group:   telegram.ChatRef{ID: testGroupID, Username: "menfesgroup"},
	}
	aud := &auditStub{}
	cfg := config.Relay{
		ChannelUsername:  "menfeschannel",
		GroupUsername:    "menfesgroup",
		Flow:             config.FlowAttributed,
		MaxVideoDuration: 30 * time.Second,
		Cooldown:         3 * time.Minute,
	}
	svc := &serviceStub{db: dbc, lang: "id"}
	relay := NewRelay(svc, tp, gate, refs, ratelimit.NewLimiter(cfg.Cooldown), aud, cfg, "TemanRandomMenfes_bot")

	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	relay.now = func() time.Time { return now }

	return &relayFixture{relay: relay, tp: tp, db: dbc, gate: gate, audit: aud, now: now}
}

func videoUpdate(userID int64, username, caption string, durationSeconds int) (*api.Update, *api.Chat, *api.User) {
	user := &api.User{ID: userID, UserName: username, FirstName: "Alice"}
	chat := api.Chat{ID: userID, Type: "private"}
	u := &api.Update{Message: &api.Message{
		Date:    int(time.Now().Unix()),
		Chat:    chat,
		From:    user,
		Video:   &api.Video{FileID: "video-file-1", Duration: durationSeconds},
		Caption: caption,
	}}
	return u, &chat, user
}

func TestPipelineAcceptsValidSubmission(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	u, chat, user := videoUpdate(1001, "alice", "hi", 25)

	proceed, err := f.relay.Handle(context.Background(), u, chat, user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proceed {
		t.Fatal("video submissions must not propagate to later handlers")
	}

	if len(f.tp.videos) != 1 {
		t.Fatalf("expected 1 forwarded video, got %d", len(f.tp.videos))
	}
	sent := f.tp.videos[0]
	if sent.chat.ID != testChannelID {
		t.Fatalf("video forwarded to wrong chat: %d", sent.chat.ID)
	}
	if !strings.Contains(sent.caption, "Dikirim oleh: @alice") {
		t.Fatalf("caption misses attribution: %q", sent.caption)
	}
	if !strings.Contains(sent.caption, "hi") {
		t.Fatalf("caption misses original message: %q", sent.caption)
	}
	if sent.markup != nil {
		t.Fatal("attributed flow must not attach reaction buttons")
	}

	if remaining := f.relay.limiter.Remaining(1001, f.now.Add(time.Second)); remaining <= 0 {
		t.Fatal("accepted submission must record the cooldown timestamp")
	}
	confirmation := f.tp.lastHTML(t)
	if !strings.Contains(confirmation, "VIDEO BERHASIL DIKIRIM") {
		t.Fatalf("unexpected confirmation: %q", confirmation)
	}
	if len(f.audit.reports) != 1 {
		t.Fatalf("expected 1 audit report, got %d", len(f.audit.reports))
	}
	if !strings.Contains(f.audit.reports[0], "@alice") {
		t.Fatalf("audit report misses the sender handle: %q", f.audit.reports[0])
	}
}

func TestPipelineBlacklistShortCircuits(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	f.db.banned[1001] = true
	u, chat, user := videoUpdate(1001, "alice", "hi", 25)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.gate.calls != 0 {
		t.Fatalf("blacklisted user must not trigger membership lookups, got %d", f.gate.calls)
	}
	if len(f.tp.videos) != 0 {
		t.Fatal("blacklisted user's video must not be forwarded")
	}
	if len(f.tp.messages) != 1 || !strings.Contains(f.tp.messages[0], "dibanned") {
		t.Fatalf("expected a banned reply, got %v", f.tp.messages)
	}
}

func TestPipelineRejectsMissingHandle(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	u, chat, user := videoUpdate(1001, "", "hi", 25)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.tp.videos) != 0 {
		t.Fatal("submission without a username must not be forwarded")
	}
	if got := f.tp.lastHTML(t); !strings.Contains(got, "USERNAME DIPERLUKAN") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestPipelineRejectsMissingCaption(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	u, chat, user := videoUpdate(1001, "alice", "   ", 25)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.tp.videos) != 0 {
		t.Fatal("submission without a caption must not be forwarded")
	}
	if got := f.tp.lastHTML(t); !strings.Contains(got, "CAPTION DIPERLUKAN") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestPipelineReportsAllMissingMemberships(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	f.gate.member = map[int64]bool{}
	u, chat, user := videoUpdate(1001, "alice", "hi", 25)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := f.tp.lastHTML(t)
	if !strings.Contains(got, "AKSES DITOLAK") {
		t.Fatalf("expected an access denied reply, got %q", got)
	}
	if !strings.Contains(got, "Grup kami") || !strings.Contains(got, "Channel kami") {
		t.Fatalf("both missing memberships must be listed, got %q", got)
	}
	if f.gate.calls != 2 {
		t.Fatalf("both memberships must be checked, got %d lookups", f.gate.calls)
	}
}

func TestPipelineCooldownStatesRemainingSeconds(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	f.relay.limiter.Record(1001, f.now.Add(-time.Minute))
	u, chat, user := videoUpdate(1001, "alice", "hi", 25)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.tp.videos) != 0 {
		t.Fatal("submission inside the cooldown window must not be forwarded")
	}
	got := f.tp.lastHTML(t)
	if !strings.Contains(got, "MOHON TUNGGU") {
		t.Fatalf("expected a cooldown reply, got %q", got)
	}
	if !strings.Contains(got, "120") {
		t.Fatalf("reply must state 120 remaining seconds, got %q", got)
	}
}

func TestPipelineAdmitsAfterCooldownWindow(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	f.relay.limiter.Record(1001, f.now.Add(-3*time.Minute))
	u, chat, user := videoUpdate(1001, "alice", "hi", 25)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.tp.videos) != 1 {
		t.Fatalf("expected the video to be forwarded, got %d", len(f.tp.videos))
	}
}

func TestPipelineRejectsTooLongVideo(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	u, chat, user := videoUpdate(1001, "alice", "hi", 31)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.tp.videos) != 0 {
		t.Fatal("too long video must not be forwarded")
	}
	got := f.tp.lastHTML(t)
	if !strings.Contains(got, "DURASI TERLALU PANJANG") {
		t.Fatalf("expected a duration reply, got %q", got)
	}
	if !strings.Contains(got, "31") || !strings.Contains(got, "30") {
		t.Fatalf("reply must state actual and maximum duration, got %q", got)
	}
}

func TestPipelineAnonymousFlowSeedsTally(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	f.relay.cfg.Flow = config.FlowAnonymous
	u, chat, user := videoUpdate(1001, "alice", "hi", 25)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.tp.videos) != 1 {
		t.Fatalf("expected 1 forwarded video, got %d", len(f.tp.videos))
	}
	sent := f.tp.videos[0]
	if strings.Contains(sent.caption, "@alice") {
		t.Fatalf("anonymous flow must not leak the sender handle: %q", sent.caption)
	}
	if !strings.Contains(sent.caption, "👍 0 | 👎 0") {
		t.Fatalf("anonymous flow must seed a zero tally: %q", sent.caption)
	}
	if sent.markup == nil || len(sent.markup.InlineKeyboard) == 0 {
		t.Fatal("anonymous flow must attach reaction buttons")
	}
	likeButton := sent.markup.InlineKeyboard[0][0]
	if likeButton.CallbackData == nil || *likeButton.CallbackData != "like:1001" {
		t.Fatalf("unexpected like payload: %v", likeButton.CallbackData)
	}
}

func TestPipelineFaultLeavesCooldownUntouched(t *testing.T) {
	t.Parallel()

	f := newRelayFixture(t)
	f.tp.videoErr = errTransportDown
	u, chat, user := videoUpdate(1001, "alice", "hi", 25)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("faults must be swallowed at the handler boundary, got %v", err)
	}
	if len(f.tp.messages) != 1 || !strings.Contains(f.tp.messages[0], "Terjadi kesalahan") {
		t.Fatalf("expected a generic failure reply, got %v", f.tp.messages)
	}
	if remaining := f.relay.limiter.Remaining(1001, f.now.Add(time.Second)); remaining != 0 {
		t.Fatal("a failed forward must not record a cooldown timestamp")
	}
	if len(f.audit.errors) == 0 {
		t.Fatal("faults must be audited as errors")
	}
}

func TestPipelineEmitsStructuredAcceptLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := observability.Logger
	observability.Logger = zap.New(core)
	defer func() { observability.Logger = prev }()

	f := newRelayFixture(t)
	u, chat, user := videoUpdate(1001, "alice", "hi", 25)

	if _, err := f.relay.Handle(context.Background(), u, chat, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.FilterMessage("video forwarded to channel").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 structured accept entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != int64(1001) {
		t.Fatalf("unexpected user_id field: %v", fields["user_id"])
	}
	if fields["duration_seconds"] != int64(25) {
		t.Fatalf("unexpected duration_seconds field: %v", fields["duration_seconds"])
	}
}
