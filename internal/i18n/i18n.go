package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/lbot-tgbot-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer. English is the canonical language and
// is always loaded.
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	langs := cfg.Languages
	if !contains(langs, "en") {
		langs = append([]string{"en"}, langs...)
	}

	for _, lang := range langs {
		if _, err := bundle.LoadMessageFileFS(locales, fmt.Sprintf("locales/%s.json", lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	defaultLanguage := cfg.DefaultLanguage
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range langs {
		localizers[lang] = i18n.NewLocalizer(bundle, lang, defaultLanguage)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: defaultLanguage,
		localizers:      localizers,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Get returns localized message. lang may be any BCP 47 tag a client reports
// ("en-US", "zh-hans"); unknown languages use the default.
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = i18n.NewLocalizer(l.bundle, lang, l.defaultLanguage)
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgHelpHeader      = "help_header"
	MsgScoreboardEmpty = "scoreboard_empty"
	MsgScoreboardLine  = "scoreboard_line"
	MsgGiveLNoReply    = "givel_no_reply"
	MsgGiveLAwarded    = "givel_awarded"
	MsgLearnNoInput    = "learn_no_input"
	MsgLearnNoResponse = "learn_no_response"
	MsgLearnDone       = "learn_done"
)
