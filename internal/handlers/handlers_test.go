package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lbot-tgbot-go/internal/commands"
	"github.com/lbot-tgbot-go/internal/config"
	"github.com/lbot-tgbot-go/internal/i18n"
	"github.com/lbot-tgbot-go/internal/middleware"
	"github.com/lbot-tgbot-go/internal/models"
	"github.com/lbot-tgbot-go/internal/router"
	"github.com/lbot-tgbot-go/internal/services/storage/storagetest"
	"github.com/lbot-tgbot-go/internal/text"
	"github.com/lbot-tgbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	rejectMD bool
	members  map[int64]string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg := c.(tgbotapi.MessageConfig)
	if b.rejectMD && msg.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	name, ok := b.members[cfg.UserID]
	if !ok {
		return tgbotapi.ChatMember{}, errors.New("Bad Request: user not found")
	}
	return tgbotapi.ChatMember{User: &tgbotapi.User{ID: cfg.UserID, FirstName: name}}, nil
}

func (b *fakeBot) messages() []tgbotapi.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), b.sent...)
}

type nopMetrics struct{}

func (nopMetrics) RecordMessageReceived(string)  {}
func (nopMetrics) RecordMessageProcessed(string) {}
func (nopMetrics) RecordRateLimitExceeded()      {}

const botID = 999

func newHandler(t *testing.T, bot *fakeBot, limits config.RateLimitConfig) *MessageHandler {
	t.Helper()

	localizer, err := i18n.NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en"}})
	require.NoError(t, err)

	transport := NewTransport(bot, logger.Discard())
	r := router.NewRouter(
		storagetest.New(t),
		nil,
		text.NewNormalizer("und"),
		commands.NewParser("/", "lbot"),
		nil,
		transport,
		localizer,
		nil,
		router.Options{},
		logger.Discard(),
	)

	limiter := middleware.NewRateLimiter(&limits, logger.Discard())
	t.Cleanup(limiter.Stop)

	return NewMessageHandler(botID, r, transport, limiter, nopMetrics{}, logger.Discard())
}

func update(id int, from int64, body string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: id,
			From:      &tgbotapi.User{ID: from, FirstName: "user"},
			Chat:      &tgbotapi.Chat{ID: -1001, Type: "supergroup"},
			Text:      body,
		},
	}
}

func TestConvertMessage(t *testing.T) {
	m := &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: 42, FirstName: "Ann", LanguageCode: "de"},
		Chat:      &tgbotapi.Chat{ID: -5, Type: "group"},
		Caption:   "look at this",
		ReplyToMessage: &tgbotapi.Message{
			MessageID: 9,
			From:      &tgbotapi.User{ID: 7},
			Chat:      &tgbotapi.Chat{ID: -5, Type: "group"},
			Text:      "earlier",
		},
	}

	got := ConvertMessage(m)
	assert.Equal(t, 10, got.ID)
	assert.Equal(t, int64(-5), got.ChatID)
	assert.True(t, got.IsGroup())
	assert.Equal(t, "42", got.AuthorID)
	assert.Equal(t, "de", got.LanguageCode)
	assert.Empty(t, got.Text)
	assert.Equal(t, "look at this", got.Quoted)
	require.NotNil(t, got.ReplyTo)
	assert.Equal(t, "7", got.ReplyTo.AuthorID)

	private := ConvertMessage(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1, Type: "private"}})
	assert.Equal(t, models.ChatPrivate, private.ChatType)
	assert.Empty(t, private.AuthorID)
}

func TestTransport_DisplayName(t *testing.T) {
	tr := NewTransport(&fakeBot{members: map[int64]string{42: "Ann "}}, logger.Discard())
	ctx := context.Background()

	name, err := tr.DisplayName(ctx, -1, "42")
	require.NoError(t, err)
	assert.Equal(t, "Ann", name)

	_, err = tr.DisplayName(ctx, -1, "43")
	assert.Error(t, err)

	_, err = tr.DisplayName(ctx, -1, "not-a-number")
	assert.Error(t, err)
}

func TestTransport_SendReply(t *testing.T) {
	bot := &fakeBot{}
	tr := NewTransport(bot, logger.Discard())

	_, err := tr.SendReply(-1, &router.Reply{Text: "plain *text*", ReplyTo: 3})
	require.NoError(t, err)
	_, err = tr.SendReply(-1, &router.Reply{Text: "__ann__ — *1* Ls", Format: router.FormatMarkdown, ReplyTo: 4})
	require.NoError(t, err)

	sent := bot.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "plain *text*", sent[0].Text)
	assert.Empty(t, sent[0].ParseMode)
	assert.Equal(t, 3, sent[0].ReplyToMessageID)
	assert.Equal(t, "<b>ann</b> — <i>1</i> Ls", sent[1].Text)
	assert.Equal(t, tgbotapi.ModeHTML, sent[1].ParseMode)
	assert.Equal(t, 4, sent[1].ReplyToMessageID)
}

func TestTransport_SendReplyFallsBackToPlain(t *testing.T) {
	bot := &fakeBot{rejectMD: true}
	tr := NewTransport(bot, logger.Discard())

	_, err := tr.SendReply(-1, &router.Reply{Text: "__ann__ — *1* Ls", Format: router.FormatMarkdown})
	require.NoError(t, err)

	sent := bot.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "__ann__ — *1* Ls", sent[0].Text)
	assert.Empty(t, sent[0].ParseMode)
}

func TestMessageHandler_LearnAndReply(t *testing.T) {
	bot := &fakeBot{members: map[int64]string{2: "Bea"}}
	h := newHandler(t, bot, config.RateLimitConfig{})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, update(1, 1, "/learn ping | pong")))
	require.NoError(t, h.HandleUpdate(ctx, update(2, 1, "Ping!")))
	require.NoError(t, h.HandleUpdate(ctx, update(3, 1, "nothing learned for this")))

	sent := bot.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "learnt", sent[0].Text)
	assert.Equal(t, 1, sent[0].ReplyToMessageID)
	assert.Equal(t, "pong", sent[1].Text)
	assert.Equal(t, 2, sent[1].ReplyToMessageID)
	assert.Equal(t, int64(-1001), sent[1].ChatID)
}

func TestMessageHandler_Scoreboard(t *testing.T) {
	bot := &fakeBot{members: map[int64]string{2: "Bea"}}
	h := newHandler(t, bot, config.RateLimitConfig{})
	ctx := context.Background()

	give := update(1, 1, "/givel")
	give.Message.ReplyToMessage = &tgbotapi.Message{MessageID: 0, From: &tgbotapi.User{ID: 2}}
	require.NoError(t, h.HandleUpdate(ctx, give))
	require.NoError(t, h.HandleUpdate(ctx, update(2, 1, "/viewscoreboard@lbot")))

	sent := bot.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "L has been awarded", sent[0].Text)
	assert.Equal(t, "<b>Bea</b> — <i>1</i> Ls", sent[1].Text)
}

func TestMessageHandler_Ignores(t *testing.T) {
	bot := &fakeBot{}
	h := newHandler(t, bot, config.RateLimitConfig{})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, tgbotapi.Update{UpdateID: 1}))
	require.NoError(t, h.HandleUpdate(ctx, update(2, botID, "/help")))
	require.NoError(t, h.HandleUpdate(ctx, update(3, 1, "/help "+strings.Repeat("x", middleware.MaxMessageBytes))))

	assert.Empty(t, bot.messages())
}

func TestMessageHandler_RateLimited(t *testing.T) {
	bot := &fakeBot{}
	h := newHandler(t, bot, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, update(1, 1, "/help")))
	require.NoError(t, h.HandleUpdate(ctx, update(2, 1, "/help")))
	require.NoError(t, h.HandleUpdate(ctx, update(3, 2, "/help")))

	assert.Len(t, bot.messages(), 2)
}

func TestMessageHandler_NoAuthorFails(t *testing.T) {
	bot := &fakeBot{}
	h := newHandler(t, bot, config.RateLimitConfig{})

	u := update(1, 1, "/help")
	u.Message.From = nil
	err := h.HandleUpdate(context.Background(), u)
	assert.ErrorIs(t, err, router.ErrNoAuthor)
	assert.Empty(t, bot.messages())
}

func TestDispatcher_HandlesEveryUpdate(t *testing.T) {
	var handled int32
	d := NewDispatcher(4, func(ctx context.Context, u tgbotapi.Update) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, logger.Discard())

	updates := make(chan tgbotapi.Update)
	done := make(chan error)
	go func() { done <- d.Run(context.Background(), updates) }()

	for i := 0; i < 50; i++ {
		updates <- tgbotapi.Update{UpdateID: i}
	}
	close(updates)

	require.NoError(t, <-done)
	assert.Equal(t, int32(50), atomic.LoadInt32(&handled))
}

func TestDispatcher_IsolatesFailures(t *testing.T) {
	var handled int32
	d := NewDispatcher(2, func(ctx context.Context, u tgbotapi.Update) error {
		switch u.UpdateID % 3 {
		case 0:
			panic("boom")
		case 1:
			return errors.New("store unavailable")
		}
		atomic.AddInt32(&handled, 1)
		return nil
	}, logger.Discard())

	updates := make(chan tgbotapi.Update, 9)
	for i := 0; i < 9; i++ {
		updates <- tgbotapi.Update{UpdateID: i}
	}
	close(updates)

	require.NoError(t, d.Run(context.Background(), updates))
	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
}

func TestDispatcher_StopsOnCancel(t *testing.T) {
	d := NewDispatcher(3, func(ctx context.Context, u tgbotapi.Update) error { return nil }, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx, make(chan tgbotapi.Update)) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
