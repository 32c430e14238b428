package bot

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ptgbot/internal/state"
)

// DefaultDocURL is linked from the usage and help replies.
const DefaultDocURL = "https://opendev.org/openstack/ptgbot/src/branch/master/README.rst"

// Sender delivers a single outbound message to a channel or nick.
// Pacing and line splitting belong to the transport, not here.
type Sender interface {
	Send(target, text string)
}

// Privileges answers channel-permission questions for the gate in
// front of track and admin commands.
type Privileges interface {
	IsOp(channel, nick string) bool
	IsVoiced(channel, nick string) bool
}

// Processor routes classified commands to the track, user and admin
// handlers. One inbound message is fully processed, and its mutation
// persisted, before the next is looked at.
type Processor struct {
	store  *state.Store
	logger *zap.Logger
	docURL string
}

// Option configures a Processor.
type Option func(*Processor)

// WithDocURL overrides the documentation link in help replies.
func WithDocURL(url string) Option {
	return func(p *Processor) { p.docURL = url }
}

// New returns a Processor bound to the given store.
func New(store *state.Store, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		store:  store,
		logger: logger,
		docURL: DefaultDocURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleMessage processes one inbound chat line. target is the channel
// the line was seen on, or "" for a direct message. Replies go back to
// the channel (prefixed with the sender's nick) or directly to the
// sender. Any panic while processing is caught here, logged, and
// reported as a generic failure instead of taking the process down.
func (p *Processor) HandleMessage(sender Sender, privs Privileges, nick, target, text string) {
	channel := target
	replyTo := channel
	if channel == "" {
		replyTo = nick
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing message",
				zap.String("nick", nick),
				zap.String("target", target),
				zap.Any("panic", r))
			commandsTotal.WithLabelValues("unknown", "panic").Inc()
			sender.Send(replyTo, fmt.Sprintf("Bot airbag activated: %v", r))
		}
	}()

	cmd := Parse(text)

	reply := func(lines ...string) {
		for _, line := range lines {
			if line == "" {
				continue
			}
			if channel != "" {
				line = nick + ": " + line
			}
			sender.Send(replyTo, line)
		}
	}

	switch cmd.Kind {
	case KindNone:
		return

	case KindHelp:
		commandsTotal.WithLabelValues("help", resultOK).Inc()
		reply("See PTGbot documentation at: " + p.docURL)

	case KindTrack:
		if channel != "" && p.store.IsVoiceRequired() &&
			!privs.IsVoiced(channel, nick) && !privs.IsOp(channel, nick) {
			commandsTotal.WithLabelValues("track", "denied").Inc()
			reply("Need voice to issue commands")
			return
		}
		replies, result := p.processTrack(sender, cmd.Name, cmd.Args)
		commandsTotal.WithLabelValues("track", result).Inc()
		reply(replies...)

	case KindUser:
		// Bare user commands in a channel are ordinary chatter.
		if cmd.Bare && channel != "" {
			return
		}
		replies, result := p.processUser(nick, cmd.Name, cmd.Args)
		commandsTotal.WithLabelValues("user", result).Inc()
		reply(replies...)

	case KindAdmin:
		if channel == "" || !privs.IsOp(channel, nick) {
			commandsTotal.WithLabelValues("admin", "denied").Inc()
			reply("Need op for admin commands")
			return
		}
		replies, result := p.processAdmin(cmd.Name, cmd.Args)
		commandsTotal.WithLabelValues("admin", result).Inc()
		reply(replies...)
	}
}

// trackList describes the current roster for unknown-track replies.
func (p *Processor) trackList() string {
	tracks := p.store.ListTracks()
	if len(tracks) == 0 {
		return "There are no active tracks defined yet"
	}
	return "Active tracks: " + strings.Join(tracks, " ")
}
