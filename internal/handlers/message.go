package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lbot-tgbot-go/internal/middleware"
	"github.com/lbot-tgbot-go/internal/models"
	"github.com/lbot-tgbot-go/internal/router"
	"github.com/lbot-tgbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Router resolves a message to a reply
type Router interface {
	Route(ctx context.Context, msg *models.Message) router.Result
}

// Metrics is the subset of middleware.Metrics used per message
type Metrics interface {
	RecordMessageReceived(chatType string)
	RecordMessageProcessed(status string)
	RecordRateLimitExceeded()
}

// MessageHandler handles inbound Telegram messages
type MessageHandler struct {
	botID       int64
	router      Router
	transport   *Transport
	rateLimiter middleware.RateLimiter
	security    *middleware.SecurityMiddleware
	metrics     Metrics
	logger      *logrus.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	botID int64,
	router Router,
	transport *Transport,
	rateLimiter middleware.RateLimiter,
	metrics Metrics,
	logger *logrus.Logger,
) *MessageHandler {
	return &MessageHandler{
		botID:       botID,
		router:      router,
		transport:   transport,
		rateLimiter: rateLimiter,
		security:    middleware.NewSecurityMiddleware(logger),
		metrics:     metrics,
		logger:      logger,
	}
}

// HandleUpdate routes the message of update and sends the reply, if any.
// Failures are logged and returned; nothing is sent to the chat for them.
func (h *MessageHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil {
		return nil
	}

	// Ignore bot's own messages
	if update.Message.From != nil && update.Message.From.ID == h.botID {
		return nil
	}

	msg := ConvertMessage(update.Message)
	log := logger.WithMessage(h.logger, msg.ChatID, msg.ID, msg.AuthorID)

	chatType := "private"
	if msg.IsGroup() {
		chatType = "group"
	}
	h.metrics.RecordMessageReceived(chatType)

	if err := h.security.ValidateInput(msg.Text); err != nil {
		log.WithError(err).Warn("Message rejected")
		h.metrics.RecordMessageProcessed("rejected")
		return nil
	}

	if msg.AuthorID != "" && !h.rateLimiter.Allow(msg.AuthorID) {
		h.metrics.RecordRateLimitExceeded()
		h.metrics.RecordMessageProcessed("rate_limited")
		return nil
	}

	res := h.router.Route(ctx, msg)
	switch res.Outcome {
	case router.Failed:
		h.metrics.RecordMessageProcessed("error")
		return res.Err
	case router.Unresolved:
		h.metrics.RecordMessageProcessed("unresolved")
		return nil
	}

	if res.Reply != nil {
		if _, err := h.transport.SendReply(msg.ChatID, res.Reply); err != nil {
			log.WithError(err).Error("Failed to send reply")
			h.metrics.RecordMessageProcessed("error")
			return err
		}
	}

	h.metrics.RecordMessageProcessed("success")
	return nil
}
