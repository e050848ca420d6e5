package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lbot-tgbot-go/internal/models"
	"github.com/lbot-tgbot-go/internal/router"
	"github.com/lbot-tgbot-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// BotClient is the part of *tgbotapi.BotAPI the handlers use
type BotClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// ConvertMessage maps a Telegram message to the transport-neutral model.
// The caption of a media message stands in for its text.
func ConvertMessage(m *tgbotapi.Message) *models.Message {
	if m == nil {
		return nil
	}

	msg := &models.Message{
		ID:     m.MessageID,
		Text:   m.Text,
		Quoted: m.Caption,
	}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
		if m.Chat.IsGroup() || m.Chat.IsSuperGroup() {
			msg.ChatType = models.ChatGroup
		}
	}
	if m.From != nil {
		msg.AuthorID = strconv.FormatInt(m.From.ID, 10)
		msg.AuthorName = m.From.FirstName
		msg.LanguageCode = m.From.LanguageCode
	}
	if m.ReplyToMessage != nil {
		msg.ReplyTo = ConvertMessage(m.ReplyToMessage)
	}

	return msg
}

// Transport sends router replies through the Bot API and resolves display names
type Transport struct {
	bot    BotClient
	logger *logrus.Logger
}

// NewTransport creates a Telegram transport
func NewTransport(bot BotClient, logger *logrus.Logger) *Transport {
	return &Transport{bot: bot, logger: logger}
}

// DisplayName returns the member's first name as seen in the chat
func (t *Transport) DisplayName(ctx context.Context, chatID int64, memberID string) (string, error) {
	userID, err := strconv.ParseInt(memberID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid member id %q: %w", memberID, err)
	}

	member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get chat member: %w", err)
	}
	if member.User == nil {
		return "", fmt.Errorf("chat member %d has no user", userID)
	}

	return strings.TrimSpace(member.User.FirstName), nil
}

// SendReply sends a reply to chatID. Markdown replies are converted to
// Telegram HTML; if Telegram rejects the HTML the raw text is sent instead.
func (t *Transport) SendReply(chatID int64, reply *router.Reply) (int, error) {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ReplyToMessageID = reply.ReplyTo
	msg.AllowSendingWithoutReply = true

	if reply.Format == router.FormatMarkdown {
		msg.Text = markdown.ToTelegramHTML(reply.Text)
		msg.ParseMode = tgbotapi.ModeHTML

		sent, err := t.bot.Send(msg)
		if err == nil {
			return sent.MessageID, nil
		}

		// If HTML parsing fails, try plain text
		t.logger.WithError(err).Warn("Failed to send HTML reply, trying plain text")
		msg.Text = reply.Text
		msg.ParseMode = ""
	}

	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to send reply: %w", err)
	}
	return sent.MessageID, nil
}
