// Package commands defines the fixed command vocabulary of the bot and parses
// it from literal chat syntax or from classifier action labels.
package commands

import (
	"strings"
	"unicode"
)

// Kind identifies a command of the vocabulary
type Kind int

const (
	Help Kind = iota
	ViewScoreboard
	GiveL
	Learn
)

// Spec describes a command: its canonical name, one-line description and
// whether it takes an argument.
type Spec struct {
	Kind        Kind
	Name        string
	Description string
	TakesArgs   bool
}

var specs = []Spec{
	{Kind: Help, Name: "help", Description: "Display this text"},
	{Kind: ViewScoreboard, Name: "viewscoreboard", Description: "view L scoreboard"},
	{Kind: GiveL, Name: "givel", Description: "award L to user"},
	{Kind: Learn, Name: "learn", Description: "learn a new phrase", TakesArgs: true},
}

// Command is a parsed command. Args holds everything after the command token
// for commands that take an argument.
type Command struct {
	Kind Kind
	Args string
}

// All returns the command specs in declaration order
func All() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	return out
}

// Name returns the canonical lowercase name of the kind
func (k Kind) Name() string {
	for _, s := range specs {
		if s.Kind == k {
			return s.Name
		}
	}
	return "unknown"
}

func (k Kind) String() string {
	return k.Name()
}

// Lookup finds a spec by exact canonical name
func Lookup(name string) (Spec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// FromLabel maps a classifier action label to a command. Labels must equal a
// canonical name exactly; classified commands never carry arguments.
func FromLabel(label string) (Command, bool) {
	spec, ok := Lookup(label)
	if !ok {
		return Command{}, false
	}
	return Command{Kind: spec.Kind}, true
}

// Parser parses literal command syntax: <prefix><name>[@<bot>][ <args>]
type Parser struct {
	prefix  string
	botName string
}

// NewParser creates a parser for the given command prefix and bot username
func NewParser(prefix, botName string) *Parser {
	return &Parser{
		prefix:  prefix,
		botName: strings.TrimPrefix(botName, "@"),
	}
}

// Parse returns the command encoded in text. A false result is not an error:
// it means text is not literal command syntax for this bot.
func (p *Parser) Parse(text string) (Command, bool) {
	if p.prefix == "" || !strings.HasPrefix(text, p.prefix) {
		return Command{}, false
	}
	body := text[len(p.prefix):]

	token, args := body, ""
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		token, args = body[:i], strings.TrimSpace(body[i:])
	}

	name := token
	if at := strings.IndexByte(token, '@'); at >= 0 {
		name = token[:at]
		if !strings.EqualFold(token[at+1:], p.botName) || p.botName == "" {
			return Command{}, false
		}
	}

	spec, ok := Lookup(name)
	if !ok {
		return Command{}, false
	}
	if !spec.TakesArgs && args != "" {
		return Command{}, false
	}

	cmd := Command{Kind: spec.Kind}
	if spec.TakesArgs {
		cmd.Args = args
	}
	return cmd, true
}

// Descriptions renders the command list under header. When mention is set
// every command carries the "@<bot>" suffix used in group chats.
func (p *Parser) Descriptions(header string, mention bool) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, s := range specs {
		b.WriteString("\n")
		b.WriteString(p.prefix)
		b.WriteString(s.Name)
		if mention && p.botName != "" {
			b.WriteString("@")
			b.WriteString(p.botName)
		}
		b.WriteString(" — ")
		b.WriteString(s.Description)
	}
	return b.String()
}
