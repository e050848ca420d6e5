// Package router resolves inbound chat messages through a fixed fallback
// chain: literal command syntax, then a classifier-inferred command, then a
// learned phrase. Earlier stages always win over later ones.
package router

import (
	"context"
	"time"

	"github.com/lbot-tgbot-go/internal/commands"
	"github.com/lbot-tgbot-go/internal/models"
	"github.com/lbot-tgbot-go/internal/text"
	"github.com/lbot-tgbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Store is the persistence the router needs
type Store interface {
	Scoreboard(ctx context.Context) ([]models.MemberStat, error)
	AwardL(ctx context.Context, memberID string) (int, error)
	LearnPhrase(ctx context.Context, authorID, content, response string) (bool, error)
	Responses(ctx context.Context, content string) ([]string, error)
}

// Classifier infers a command label from free text. An empty label means no match.
type Classifier interface {
	Detect(ctx context.Context, text, language string) (string, error)
}

// DisplayNamer resolves a member id to the name shown on the scoreboard
type DisplayNamer interface {
	DisplayName(ctx context.Context, chatID int64, memberID string) (string, error)
}

// Localizer renders user-visible literals
type Localizer interface {
	Get(lang, messageID string, data map[string]interface{}) string
}

// Recorder receives routing observations
type Recorder interface {
	RecordRoute(stage, outcome string)
	RecordCommandExecuted(command string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRoute(string, string)     {}
func (nopRecorder) RecordCommandExecuted(string) {}

// Options tune the classifier stage
type Options struct {
	// ClassifierTimeout bounds each classifier call; a timeout counts as no match
	ClassifierTimeout time.Duration
	// ClassifierLanguage is the language sent with every classifier call
	ClassifierLanguage string
	// UseClientLanguage prefers the sender's language code when it is set
	UseClientLanguage bool
}

// Router implements the fallback chain
type Router struct {
	store      Store
	classifier Classifier
	normalizer *text.Normalizer
	parser     *commands.Parser
	selector   Selector
	names      DisplayNamer
	localizer  Localizer
	recorder   Recorder
	opts       Options
	logger     *logrus.Logger
}

// NewRouter creates a router. A nil classifier disables the classified stage,
// a nil recorder disables metrics.
func NewRouter(
	store Store,
	classifier Classifier,
	normalizer *text.Normalizer,
	parser *commands.Parser,
	selector Selector,
	names DisplayNamer,
	localizer Localizer,
	recorder Recorder,
	opts Options,
	logger *logrus.Logger,
) *Router {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if selector == nil {
		selector = NewUniformSelector()
	}
	if opts.ClassifierTimeout <= 0 {
		opts.ClassifierTimeout = 3 * time.Second
	}
	if opts.ClassifierLanguage == "" {
		opts.ClassifierLanguage = "en"
	}
	return &Router{
		store:      store,
		classifier: classifier,
		normalizer: normalizer,
		parser:     parser,
		selector:   selector,
		names:      names,
		localizer:  localizer,
		recorder:   recorder,
		opts:       opts,
		logger:     logger,
	}
}

// Route runs msg through the fallback chain and reports what happened. It
// never returns internal error text as reply content.
func (r *Router) Route(ctx context.Context, msg *models.Message) Result {
	res := r.route(ctx, msg)
	r.recorder.RecordRoute(string(res.Stage), res.Outcome.String())
	if res.Command != nil && res.Outcome != Unresolved {
		r.recorder.RecordCommandExecuted(res.Command.Kind.Name())
	}
	return res
}

func (r *Router) route(ctx context.Context, msg *models.Message) Result {
	if msg.AuthorID == "" {
		return failed(StageNone, nil, ErrNoAuthor)
	}

	log := logger.WithMessage(r.logger, msg.ChatID, msg.ID, msg.AuthorID)

	if cmd, ok := r.parser.Parse(msg.Text); ok {
		log.WithField("command", cmd.Kind).Debug("Literal command parsed")
		return r.execute(ctx, StageLiteral, cmd, msg)
	}

	input := msg.Text
	if input == "" {
		input = msg.Quoted
	}
	if input == "" {
		log.Debug("No dialog matched")
		return unresolved()
	}

	if cmd, ok := r.classify(ctx, log, input, msg.LanguageCode); ok {
		log.WithField("command", cmd.Kind).Debug("Classified command")
		return r.execute(ctx, StageClassified, cmd, msg)
	}

	return r.matchPhrase(ctx, log, input, msg)
}

// classify asks the classifier for a command. Failures and timeouts are
// logged and reported as no match.
func (r *Router) classify(ctx context.Context, log *logrus.Entry, input, clientLanguage string) (commands.Command, bool) {
	if r.classifier == nil {
		return commands.Command{}, false
	}
	language := r.opts.ClassifierLanguage
	if r.opts.UseClientLanguage && clientLanguage != "" {
		language = clientLanguage
	}

	cctx, cancel := context.WithTimeout(ctx, r.opts.ClassifierTimeout)
	defer cancel()

	label, err := r.classifier.Detect(cctx, input, language)
	if err != nil {
		log.WithError(err).Warn("Classifier failed, falling back to phrase match")
		return commands.Command{}, false
	}
	if label == "" {
		return commands.Command{}, false
	}

	cmd, ok := commands.FromLabel(label)
	if !ok {
		log.WithField("label", label).Debug("Classifier label is not a command")
	}
	return cmd, ok
}

func (r *Router) matchPhrase(ctx context.Context, log *logrus.Entry, input string, msg *models.Message) Result {
	phrase := r.normalizer.Normalize(input)
	if phrase == "" {
		log.Debug("No dialog matched")
		return unresolved()
	}

	responses, err := r.store.Responses(ctx, phrase)
	if err != nil {
		log.WithError(err).Error("Failed to look up phrase")
		return failed(StagePhrase, nil, err)
	}

	response, ok := r.selector.Select(responses)
	if !ok {
		log.WithField("phrase", phrase).Debug("No dialog matched")
		return unresolved()
	}

	log.WithFields(logrus.Fields{
		"phrase":     phrase,
		"candidates": len(responses),
	}).Debug("Phrase matched")

	return Result{
		Outcome: Resolved,
		Stage:   StagePhrase,
		Reply:   &Reply{Text: response, Format: FormatPlain, ReplyTo: msg.ID},
	}
}
