package router

import (
	"context"
	"strings"

	"github.com/lbot-tgbot-go/internal/commands"
	"github.com/lbot-tgbot-go/internal/i18n"
	"github.com/lbot-tgbot-go/internal/models"
	"github.com/lbot-tgbot-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// learnSeparator splits a Learn body into phrase and response
const learnSeparator = " | "

func (r *Router) execute(ctx context.Context, stage Stage, cmd commands.Command, msg *models.Message) Result {
	var (
		reply *Reply
		err   error
	)
	switch cmd.Kind {
	case commands.Help:
		reply = r.help(msg)
	case commands.ViewScoreboard:
		reply, err = r.scoreboard(ctx, msg)
	case commands.GiveL:
		reply, err = r.giveL(ctx, msg)
	case commands.Learn:
		reply, err = r.learn(ctx, cmd.Args, msg)
	}

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"chat_id": msg.ChatID,
			"command": cmd.Kind,
			"stage":   stage,
		}).Error("Command failed")
		return failed(stage, &cmd, err)
	}

	r.logger.WithFields(logrus.Fields{
		"chat_id":   msg.ChatID,
		"author_id": msg.AuthorID,
		"command":   cmd.Kind,
		"stage":     stage,
	}).Info("Command executed")

	return Result{Outcome: Resolved, Stage: stage, Command: &cmd, Reply: reply}
}

func (r *Router) localize(msg *models.Message, id string, data map[string]interface{}) string {
	return r.localizer.Get(msg.LanguageCode, id, data)
}

func (r *Router) replyTo(msg *models.Message, text string, format Format) *Reply {
	return &Reply{Text: text, Format: format, ReplyTo: msg.ID}
}

func (r *Router) help(msg *models.Message) *Reply {
	header := r.localize(msg, i18n.MsgHelpHeader, nil)
	return r.replyTo(msg, r.parser.Descriptions(header, msg.IsGroup()), FormatPlain)
}

func (r *Router) scoreboard(ctx context.Context, msg *models.Message) (*Reply, error) {
	stats, err := r.store.Scoreboard(ctx)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return r.replyTo(msg, r.localize(msg, i18n.MsgScoreboardEmpty, nil), FormatPlain), nil
	}

	lines := make([]string, 0, len(stats))
	for _, s := range stats {
		lines = append(lines, r.localize(msg, i18n.MsgScoreboardLine, map[string]interface{}{
			"Name": markdown.Escape(r.displayName(ctx, msg.ChatID, s.MemberID)),
			"Ls":   s.Ls,
		}))
	}
	return r.replyTo(msg, strings.Join(lines, "\n"), FormatMarkdown), nil
}

// displayName falls back to the member id when the transport cannot resolve it
func (r *Router) displayName(ctx context.Context, chatID int64, memberID string) string {
	if r.names == nil {
		return memberID
	}
	name, err := r.names.DisplayName(ctx, chatID, memberID)
	if err != nil || name == "" {
		r.logger.WithError(err).WithField("member_id", memberID).Debug("Display name unavailable")
		return memberID
	}
	return name
}

func (r *Router) giveL(ctx context.Context, msg *models.Message) (*Reply, error) {
	if msg.ReplyTo == nil || msg.ReplyTo.AuthorID == "" {
		return r.replyTo(msg, r.localize(msg, i18n.MsgGiveLNoReply, nil), FormatPlain), nil
	}
	target := msg.ReplyTo.AuthorID

	ls, err := r.store.AwardL(ctx, target)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"member_id": target,
		"ls":        ls,
	}).Debug("L awarded")

	return r.replyTo(msg, r.localize(msg, i18n.MsgGiveLAwarded, nil), FormatPlain), nil
}

func (r *Router) learn(ctx context.Context, body string, msg *models.Message) (*Reply, error) {
	// "phrase | response | rest" learns response; anything after the second
	// separator is dropped
	parts := strings.Split(body, learnSeparator)
	phrase := parts[0]
	if phrase == "" {
		return r.replyTo(msg, r.localize(msg, i18n.MsgLearnNoInput, nil), FormatPlain), nil
	}
	if len(parts) < 2 || parts[1] == "" {
		return r.replyTo(msg, r.localize(msg, i18n.MsgLearnNoResponse, nil), FormatPlain), nil
	}
	response := parts[1]

	normalized := r.normalizer.Normalize(phrase)
	if normalized == "" {
		return r.replyTo(msg, r.localize(msg, i18n.MsgLearnNoInput, nil), FormatPlain), nil
	}

	if _, err := r.store.LearnPhrase(ctx, msg.AuthorID, normalized, response); err != nil {
		return nil, err
	}

	return r.replyTo(msg, r.localize(msg, i18n.MsgLearnDone, nil), FormatPlain), nil
}
