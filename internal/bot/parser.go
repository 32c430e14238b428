// Package bot implements the command-dispatch engine: chat lines are
// classified by their leading sigil, validated, applied to the state
// store, and answered with plain-text replies. The package knows
// nothing about any particular chat transport; callers inject a Sender
// for outbound messages and a Privileges source for voice/op checks.
package bot

import "strings"

// Kind is the command category selected by the leading sigil.
type Kind int

const (
	// KindNone marks ordinary chatter the bot ignores.
	KindNone Kind = iota
	// KindHelp is #help / +help, answered before any other checks.
	KindHelp
	// KindTrack is a #track directive.
	KindTrack
	// KindUser is a personal command (in, out, seen, subscribe...).
	KindUser
	// KindAdmin is a ~command reserved for channel operators.
	KindAdmin
)

// userCommands are the personal commands reachable without a sigil in
// direct messages, or via +cmd / #cmd anywhere.
var userCommands = map[string]bool{
	"in":          true,
	"out":         true,
	"seen":        true,
	"subscribe":   true,
	"unsubscribe": true,
}

// Command is a classified chat line.
type Command struct {
	Kind Kind
	// Name is the track name (lower-cased), user subcommand, or admin
	// command depending on Kind.
	Name string
	// Args are the remaining whitespace-separated tokens.
	Args []string
	// Sentence is Args re-joined with single spaces, for commands
	// taking free text.
	Sentence string
	// Bare is set for user commands given without any sigil; those are
	// only honored in direct messages.
	Bare bool
}

// Parse classifies a raw message into a command. Lines that are not
// addressed to the bot come back as KindNone.
func Parse(text string) Command {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{Kind: KindNone}
	}

	first := fields[0]
	args := fields[1:]
	sentence := strings.Join(args, " ")

	lower := strings.ToLower(first)
	if lower == "#help" || lower == "+help" {
		return Command{Kind: KindHelp}
	}

	switch {
	case strings.HasPrefix(first, "#"), strings.HasPrefix(first, "+"):
		name := strings.ToLower(first[1:])
		if name == "" {
			return Command{Kind: KindNone}
		}
		if userCommands[name] || first[0] == '+' {
			return Command{Kind: KindUser, Name: name, Args: args, Sentence: sentence}
		}
		return Command{Kind: KindTrack, Name: name, Args: args, Sentence: sentence}
	case strings.HasPrefix(first, "~"):
		name := strings.ToLower(first[1:])
		if name == "" {
			return Command{Kind: KindNone}
		}
		return Command{Kind: KindAdmin, Name: name, Args: args, Sentence: sentence}
	case userCommands[lower]:
		return Command{Kind: KindUser, Name: lower, Args: args, Sentence: sentence, Bare: true}
	}
	return Command{Kind: KindNone}
}
