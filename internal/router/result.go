package router

import (
	"errors"

	"github.com/lbot-tgbot-go/internal/commands"
)

// ErrNoAuthor is returned for messages whose author cannot be identified
var ErrNoAuthor = errors.New("message has no identifiable author")

// Outcome is the terminal state of routing a message
type Outcome int

const (
	// Unresolved means no stage matched; nothing is sent
	Unresolved Outcome = iota
	// Resolved means a stage handled the message; Reply may be set
	Resolved
	// Failed means processing of this message was aborted by an error
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unresolved"
	}
}

// Stage names the step of the fallback chain that produced a result
type Stage string

const (
	StageNone       Stage = "none"
	StageLiteral    Stage = "literal"
	StageClassified Stage = "classified"
	StagePhrase     Stage = "phrase"
)

// Format tells the transport how to render reply text
type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
)

// Reply is a message to send back to the chat the input came from
type Reply struct {
	Text   string
	Format Format
	// ReplyTo is the id of the message being answered, 0 for none
	ReplyTo int
}

// Result is what Route decided for one message
type Result struct {
	Outcome Outcome
	Stage   Stage
	// Command is set when a literal or classified command was executed
	Command *commands.Command
	Reply   *Reply
	Err     error
}

// ReplyText returns the reply text, or "" when nothing should be sent
func (r Result) ReplyText() string {
	if r.Reply == nil {
		return ""
	}
	return r.Reply.Text
}

func unresolved() Result {
	return Result{Outcome: Unresolved, Stage: StageNone}
}

func failed(stage Stage, cmd *commands.Command, err error) Result {
	return Result{Outcome: Failed, Stage: stage, Command: cmd, Err: err}
}
