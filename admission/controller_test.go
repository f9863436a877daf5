package admission

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/captcha"
	"gatekeeper/locale"
	"gatekeeper/model"
	"gatekeeper/selfdestruct"
	"gatekeeper/store"
	"gatekeeper/transport"
)

type fakeMsg struct {
	chat string
	id   string
	text string
}

type fakeMessenger struct {
	nextID     int
	sent       []fakeMsg
	photos     []fakeMsg
	edits      []fakeMsg
	deleted    []string
	kicked     []string
	banned     []string
	restricted []string
	left       []string

	sendErr   error
	photoErr  error
	editErr   error
	deleteErr error
	kickErr   error
	banErr    error

	admins map[string]bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{admins: make(map[string]bool)}
}

func (f *fakeMessenger) SelfID() string { return "bot" }

func (f *fakeMessenger) SendMessage(chatID, text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.sent = append(f.sent, fakeMsg{chat: chatID, id: id, text: text})
	return id, nil
}

func (f *fakeMessenger) SendPhoto(chatID, caption string, image []byte, button *transport.Button) (string, error) {
	if f.photoErr != nil {
		return "", f.photoErr
	}
	f.nextID++
	id := fmt.Sprintf("p%d", f.nextID)
	f.photos = append(f.photos, fakeMsg{chat: chatID, id: id, text: caption})
	return id, nil
}

func (f *fakeMessenger) EditPhoto(chatID, messageID, caption string, image []byte, button *transport.Button) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, fakeMsg{chat: chatID, id: messageID, text: caption})
	return nil
}

func (f *fakeMessenger) DeleteMessage(chatID, messageID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) RestrictToText(chatID, memberID string) error {
	f.restricted = append(f.restricted, memberID)
	return nil
}

func (f *fakeMessenger) KickAndUnban(chatID, memberID, reason string) error {
	if f.kickErr != nil {
		return f.kickErr
	}
	f.kicked = append(f.kicked, memberID)
	return nil
}

func (f *fakeMessenger) BanPermanently(chatID, memberID, reason string) error {
	if f.banErr != nil {
		return f.banErr
	}
	f.banned = append(f.banned, memberID)
	return nil
}

func (f *fakeMessenger) IsAdmin(chatID, memberID string) (bool, error) {
	return f.admins[memberID], nil
}

func (f *fakeMessenger) ChatInfo(chatID string) (transport.ChatInfo, error) {
	return transport.ChatInfo{ID: chatID, Title: "Test Chat"}, nil
}

func (f *fakeMessenger) CreateInviteLink(chatID string) (string, error) {
	return "https://discord.gg/test", nil
}

func (f *fakeMessenger) LeaveChat(chatID string) error {
	f.left = append(f.left, chatID)
	return nil
}

func (f *fakeMessenger) wasDeleted(id string) bool {
	for _, d := range f.deleted {
		if d == id {
			return true
		}
	}
	return false
}

func (f *fakeMessenger) lastSent() fakeMsg {
	if len(f.sent) == 0 {
		return fakeMsg{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeGenerator struct {
	answers []string
	calls   int
}

func (g *fakeGenerator) Generate(difficulty int, mode string) (captcha.Challenge, error) {
	answer := "1234"
	if g.calls < len(g.answers) {
		answer = g.answers[g.calls]
	}
	g.calls++
	return captcha.Challenge{Image: []byte("png"), Answer: answer}, nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	ctrl  *Controller
	msgr  *fakeMessenger
	gen   *fakeGenerator
	store *store.Store
	sched *selfdestruct.Scheduler
	clock *fakeClock
	texts *locale.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	texts, err := locale.Load()
	require.NoError(t, err)

	msgr := newFakeMessenger()
	gen := &fakeGenerator{}
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	sched := selfdestruct.New(msgr, st, texts)
	sched.SetClock(clock.now)

	ctrl := NewController(msgr, gen, st, texts, sched)
	ctrl.SetClock(clock.now)

	return &fixture{ctrl: ctrl, msgr: msgr, gen: gen, store: st, sched: sched, clock: clock, texts: texts}
}

func join(fx *fixture, chatID, memberID, name string) {
	fx.ctrl.HandleJoin(JoinEvent{
		ChatID:     chatID,
		ChatTitle:  "Test Chat",
		MemberID:   memberID,
		MemberName: name,
	})
}

func TestJoinIssuesChallenge(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"7291"}

	join(fx, "g1", "u1", "Alice")

	require.Len(t, fx.msgr.photos, 1)
	assert.Contains(t, fx.msgr.photos[0].text, "Alice")

	entry, ok := fx.ctrl.Registry().Lookup("g1", "u1")
	require.True(t, ok)
	assert.Equal(t, "7291", entry.Answer)
	assert.Equal(t, 1, entry.Retries)
	assert.Equal(t, fx.msgr.photos[0].id, entry.Artifacts.CaptchaMsgID)

	// The challenge image is queued for deletion.
	assert.Equal(t, 1, fx.sched.Len())
}

func TestJoinSkipsBotsAdminsAndIgnored(t *testing.T) {
	fx := newFixture(t)

	fx.ctrl.HandleJoin(JoinEvent{ChatID: "g1", MemberID: "b1", MemberName: "Bot", MemberIsBot: true})
	assert.Equal(t, 0, fx.ctrl.PendingCount())

	fx.msgr.admins["a1"] = true
	join(fx, "g1", "a1", "Admin")
	assert.Equal(t, 0, fx.ctrl.PendingCount())

	fx.store.SetStringSlice("g1", model.KeyIgnoreList, []string{"u9"})
	join(fx, "g1", "u9", "Trusted")
	assert.Equal(t, 0, fx.ctrl.PendingCount())
	assert.Empty(t, fx.msgr.photos)
}

func TestJoinDisabledChat(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetBool("g1", model.KeyEnabled, false)

	join(fx, "g1", "u1", "Alice")

	assert.Empty(t, fx.msgr.photos)
	assert.Equal(t, 0, fx.ctrl.PendingCount())
}

func TestJoinBroadcastChatLeaves(t *testing.T) {
	fx := newFixture(t)

	fx.ctrl.HandleJoin(JoinEvent{ChatID: "news", MemberID: "u1", MemberName: "Alice", Broadcast: true})

	assert.Equal(t, []string{"news"}, fx.msgr.left)
	assert.Equal(t, 0, fx.ctrl.PendingCount())
}

func TestJoinTruncatesLongNameOnRuneBoundary(t *testing.T) {
	fx := newFixture(t)

	join(fx, "g1", "u1", strings.Repeat("ñ", 40))

	entry, ok := fx.ctrl.Registry().Lookup("g1", "u1")
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("ñ", 35), entry.Name)
	assert.True(t, utf8.ValidString(entry.Name))
}

func TestAttachJoinNotice(t *testing.T) {
	fx := newFixture(t)
	join(fx, "g1", "u1", "Alice")

	assert.True(t, fx.ctrl.AttachJoinNotice("g1", "u1", "jn1"))
	entry, _ := fx.ctrl.Registry().Lookup("g1", "u1")
	assert.Equal(t, "jn1", entry.Artifacts.JoinNoticeID)

	// No pending entry, nothing to attach to.
	assert.False(t, fx.ctrl.AttachJoinNotice("g1", "stranger", "jn2"))
}

func TestRejoinDeletesJoinNotice(t *testing.T) {
	fx := newFixture(t)
	join(fx, "g1", "u1", "Alice")
	fx.ctrl.AttachJoinNotice("g1", "u1", "jn1")

	join(fx, "g1", "u1", "Alice")

	assert.True(t, fx.msgr.wasDeleted("jn1"))
}

func TestRejoinSupersedesArtifactsAndKeepsRetries(t *testing.T) {
	fx := newFixture(t)
	join(fx, "g1", "u1", "Alice")
	first, _ := fx.ctrl.Registry().Lookup("g1", "u1")
	fx.ctrl.Registry().Update("g1", "u1", func(p *model.PendingMember) { p.Retries = 3 })

	join(fx, "g1", "u1", "Alice")

	assert.True(t, fx.msgr.wasDeleted(first.Artifacts.CaptchaMsgID))
	entry, ok := fx.ctrl.Registry().Lookup("g1", "u1")
	require.True(t, ok)
	assert.Equal(t, 3, entry.Retries)
	assert.Equal(t, 1, fx.ctrl.PendingCount())
	assert.NotEqual(t, first.Artifacts.CaptchaMsgID, entry.Artifacts.CaptchaMsgID)
}

func TestSolveChallengeSubstringCaseInsensitive(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"A7B2"}
	join(fx, "g1", "u1", "Alice")
	captchaID := fx.msgr.photos[0].id

	handled := fx.ctrl.HandleMessage(MessageEvent{
		ChatID: "g1", MemberID: "u1", MemberName: "Alice",
		MessageID: "msg1", Text: "i think it is a7b2 maybe", IsText: true,
	})

	assert.True(t, handled)
	assert.Equal(t, 0, fx.ctrl.PendingCount())
	assert.True(t, fx.msgr.wasDeleted(captchaID))
	assert.True(t, fx.msgr.wasDeleted("msg1"))
	assert.Contains(t, fx.msgr.lastSent().text, "Alice")
}

func TestSolveRestrictsWhenConfigured(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"9911"}
	fx.store.SetBool("g1", model.KeyRestrictNonText, true)
	join(fx, "g1", "u1", "Alice")

	fx.ctrl.HandleMessage(MessageEvent{
		ChatID: "g1", MemberID: "u1", MessageID: "msg1", Text: "9911", IsText: true,
	})

	assert.Equal(t, []string{"u1"}, fx.msgr.restricted)
}

func TestWelcomeDisabledSentinel(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"9911"}
	fx.store.Set("g1", model.KeyWelcomeMsg, model.WelcomeDisabled)
	join(fx, "g1", "u1", "Alice")
	before := len(fx.msgr.sent)

	fx.ctrl.HandleMessage(MessageEvent{
		ChatID: "g1", MemberID: "u1", MessageID: "msg1", Text: "9911", IsText: true,
	})

	assert.Len(t, fx.msgr.sent, before)
}

func TestPlausibleWrongAnswerGraceDeletion(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"1234"}
	join(fx, "g1", "u1", "Alice")

	fx.ctrl.HandleMessage(MessageEvent{
		ChatID: "g1", MemberID: "u1", MessageID: "wrong1", Text: "9999", IsText: true,
	})

	// Not removed right away.
	assert.False(t, fx.msgr.wasDeleted("wrong1"))
	entry, _ := fx.ctrl.Registry().Lookup("g1", "u1")
	assert.NotEmpty(t, entry.Artifacts.WrongNoticeID)

	fx.clock.advance(59 * time.Second)
	fx.sched.Sweep()
	assert.False(t, fx.msgr.wasDeleted("wrong1"))

	fx.clock.advance(2 * time.Second)
	fx.sched.Sweep()
	assert.True(t, fx.msgr.wasDeleted("wrong1"))
}

func TestVeryLongNumericWrongAnswerStillGetsGrace(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"1234"}
	join(fx, "g1", "u1", "Alice")

	fx.ctrl.HandleMessage(MessageEvent{
		ChatID: "g1", MemberID: "u1", MessageID: "big1",
		Text: strings.Repeat("9", 25), IsText: true,
	})

	// Digits beyond int range are still a plausible attempt, not spam.
	assert.False(t, fx.msgr.wasDeleted("big1"))
	entry, _ := fx.ctrl.Registry().Lookup("g1", "u1")
	assert.NotEmpty(t, entry.Artifacts.WrongNoticeID)

	fx.clock.advance(61 * time.Second)
	fx.sched.Sweep()
	assert.True(t, fx.msgr.wasDeleted("big1"))
}

func TestSecondWrongAnswerReplacesNotice(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"1234"}
	join(fx, "g1", "u1", "Alice")

	fx.ctrl.HandleMessage(MessageEvent{ChatID: "g1", MemberID: "u1", MessageID: "w1", Text: "0000", IsText: true})
	first, _ := fx.ctrl.Registry().Lookup("g1", "u1")
	fx.ctrl.HandleMessage(MessageEvent{ChatID: "g1", MemberID: "u1", MessageID: "w2", Text: "1111", IsText: true})
	second, _ := fx.ctrl.Registry().Lookup("g1", "u1")

	assert.True(t, fx.msgr.wasDeleted(first.Artifacts.WrongNoticeID))
	assert.NotEqual(t, first.Artifacts.WrongNoticeID, second.Artifacts.WrongNoticeID)
}

func TestSpamFromPendingMemberDeleted(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"ZQXW"}
	join(fx, "g1", "u1", "Alice")
	queued := fx.sched.Len()

	handled := fx.ctrl.HandleMessage(MessageEvent{
		ChatID: "g1", MemberID: "u1", MessageID: "spam1",
		Text: "4821 check this out http://example.com", IsText: true,
	})

	assert.True(t, handled)
	assert.True(t, fx.msgr.wasDeleted("spam1"))
	assert.Contains(t, fx.msgr.lastSent().text, "Alice")
	// Spam notice lives as long as the challenge window.
	assert.Equal(t, queued+1, fx.sched.Len())
	// Member remains pending.
	assert.Equal(t, 1, fx.ctrl.PendingCount())
}

func TestEmbeddedURLCountsTowardAnswer(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"1234"}
	join(fx, "g1", "u1", "Alice")

	fx.ctrl.HandleMessage(MessageEvent{
		ChatID: "g1", MemberID: "u1", MessageID: "m1",
		Text: "look", EntityURLs: []string{"https://evil.example/1234"}, IsText: true,
	})

	// Embedded link targets are part of the matched text, so a code hidden
	// inside a URL still resolves the challenge.
	assert.Equal(t, 0, fx.ctrl.PendingCount())
}

func TestNonTextMessageDeleted(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"1234"}
	join(fx, "g1", "u1", "Alice")

	fx.ctrl.HandleMessage(MessageEvent{
		ChatID: "g1", MemberID: "u1", MessageID: "sticker1", IsText: false,
	})

	assert.True(t, fx.msgr.wasDeleted("sticker1"))
	assert.Equal(t, 1, fx.ctrl.PendingCount())
}

func TestMessageFromNonPendingMemberIgnored(t *testing.T) {
	fx := newFixture(t)

	handled := fx.ctrl.HandleMessage(MessageEvent{
		ChatID: "g1", MemberID: "u1", MessageID: "m1", Text: "hello http://spam.example", IsText: true,
	})

	assert.False(t, handled)
	assert.Empty(t, fx.msgr.deleted)
}

func TestNewCaptchaButtonRegenerates(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"1111", "2222"}
	join(fx, "g1", "u1", "Alice")
	entry, _ := fx.ctrl.Registry().Lookup("g1", "u1")

	fx.ctrl.HandleNewCaptchaButton("g1", "u1", entry.Artifacts.CaptchaMsgID)

	require.Len(t, fx.msgr.edits, 1)
	updated, _ := fx.ctrl.Registry().Lookup("g1", "u1")
	assert.Equal(t, "2222", updated.Answer)
}

func TestNewCaptchaButtonKeepsAnswerOnEditFailure(t *testing.T) {
	fx := newFixture(t)
	fx.gen.answers = []string{"1111", "2222"}
	join(fx, "g1", "u1", "Alice")
	entry, _ := fx.ctrl.Registry().Lookup("g1", "u1")
	fx.msgr.editErr = &transport.Error{Op: "edit", Kind: transport.KindOther, Err: errors.New("boom")}

	fx.ctrl.HandleNewCaptchaButton("g1", "u1", entry.Artifacts.CaptchaMsgID)

	updated, _ := fx.ctrl.Registry().Lookup("g1", "u1")
	assert.Equal(t, "1111", updated.Answer)
}

func TestProtectionGrantsSingleSlot(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetBool("g1", model.KeyProtected, true)

	reply := fx.ctrl.RequestAccess("g1", "u1")
	assert.Contains(t, reply, "https://discord.gg/test")

	// Second requester is told to wait.
	busy := fx.ctrl.RequestAccess("g1", "u2")
	assert.NotContains(t, busy, "https://discord.gg/")

	// Authorized member joins inside the window and is welcomed.
	join(fx, "g1", "u1", "Alice")
	assert.Empty(t, fx.msgr.kicked)
	assert.Equal(t, 0, fx.ctrl.PendingCount())
	user, _ := fx.store.Get("g1", model.KeyProtectionUser)
	assert.Empty(t, user)

	// Anyone else is kicked on sight.
	join(fx, "g1", "u3", "Mallory")
	assert.Equal(t, []string{"u3"}, fx.msgr.kicked)
}

func TestProtectionExpiredGrant(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetBool("g1", model.KeyProtected, true)
	fx.ctrl.RequestAccess("g1", "u1")

	fx.clock.advance(6 * time.Minute)
	join(fx, "g1", "u1", "Alice")

	assert.Equal(t, []string{"u1"}, fx.msgr.kicked)
}

func TestBotAddedStoresMetadataAndGreets(t *testing.T) {
	fx := newFixture(t)

	fx.ctrl.HandleBotAdded("g1", "My Server", "https://discord.gg/abc", "es-ES")

	title, _ := fx.store.Get("g1", model.KeyTitle)
	assert.Equal(t, "My Server", title)
	lang, _ := fx.store.Get("g1", model.KeyLanguage)
	assert.Equal(t, "ES", lang)
	require.Len(t, fx.msgr.sent, 1)
	assert.True(t, strings.HasPrefix(fx.msgr.sent[0].text, "¡Hola!"))
}

func TestLooksLikeSpam(t *testing.T) {
	assert.True(t, looksLikeSpam("join example.com now"))
	assert.True(t, looksLikeSpam("dm @someone for deals"))
	assert.False(t, looksLikeSpam("just a normal sentence"))
	assert.False(t, looksLikeSpam("a @ b"))
}
