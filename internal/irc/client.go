// Package irc is the chat transport collaborator: it connects, joins
// the event channel, answers voice/op questions, and delivers outbound
// messages with anti-flood pacing and line wrapping. All command logic
// lives in internal/bot.
package irc

import (
	"context"
	"fmt"
	"time"

	"github.com/lrstanley/girc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ptgbot/internal/bot"
)

const (
	// maxLineLength is an estimate of a safe IRC line length.
	maxLineLength = 400
	// maxChunks caps how many lines one message may wrap into;
	// anything longer is truncated and logged.
	maxChunks = 10
	// antiFloodInterval is the pause enforced between outbound lines.
	antiFloodInterval = 2 * time.Second
	// reconnectDelay is the pause before a reconnection attempt.
	reconnectDelay = 30 * time.Second
)

// Config holds IRC connection settings.
type Config struct {
	Server       string
	Port         int
	TLS          bool
	Nick         string
	Ident        string
	RealName     string
	SASLLogin    string
	SASLPassword string
	Channel      string
}

// Handler receives every inbound chat line.
type Handler interface {
	HandleMessage(sender bot.Sender, privs bot.Privileges, nick, target, text string)
}

// Client is the girc-backed transport. It implements bot.Sender and
// bot.Privileges.
type Client struct {
	cfg     Config
	irc     *girc.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	handler Handler
}

// New builds a client for the given connection settings. Run must be
// called to actually connect.
func New(cfg Config, handler Handler, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Ident == "" {
		cfg.Ident = cfg.Nick
	}
	if cfg.RealName == "" {
		cfg.RealName = cfg.Nick
	}

	gcfg := girc.Config{
		Server: cfg.Server,
		Port:   cfg.Port,
		Nick:   cfg.Nick,
		User:   cfg.Ident,
		Name:   cfg.RealName,
		SSL:    cfg.TLS,
	}
	if cfg.SASLLogin != "" {
		gcfg.SASL = &girc.SASLPlain{
			User: cfg.SASLLogin,
			Pass: cfg.SASLPassword,
		}
	}

	c := &Client{
		cfg:     cfg,
		irc:     girc.New(gcfg),
		limiter: rate.NewLimiter(rate.Every(antiFloodInterval), 1),
		logger:  logger,
		handler: handler,
	}

	c.irc.Handlers.Add(girc.CONNECTED, func(gc *girc.Client, _ girc.Event) {
		logger.Info("connected, joining channel", zap.String("channel", cfg.Channel))
		gc.Cmd.Join(cfg.Channel)
	})
	c.irc.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)

	return c
}

func (c *Client) onPrivmsg(_ *girc.Client, e girc.Event) {
	if e.Source == nil {
		return
	}
	nick := e.Source.Name
	text := e.Last()

	// target is the channel for public messages, empty for direct ones.
	target := ""
	if e.IsFromChannel() {
		target = e.Params[0]
	}
	c.handler.HandleMessage(c, c, nick, target, text)
}

// Send delivers one message, wrapping long text and pacing consecutive
// lines to stay under flood limits. Delivery to an unknown nick is
// silently dropped by the server, which is the behavior notification
// fan-out relies on.
func (c *Client) Send(target, text string) {
	chunks := wrap(text, maxLineLength)
	if len(chunks) > maxChunks {
		c.logger.Error("unusually large message truncated",
			zap.String("target", target), zap.Int("chunks", len(chunks)))
		chunks = chunks[:maxChunks]
	}
	for _, chunk := range chunks {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return
		}
		c.irc.Cmd.Message(target, chunk)
	}
}

// IsOp reports whether the nick has operator status on the channel.
func (c *Client) IsOp(channel, nick string) bool {
	user := c.irc.LookupUser(nick)
	if user == nil {
		return false
	}
	perms, ok := user.Perms.Lookup(channel)
	if !ok {
		return false
	}
	return perms.IsAdmin()
}

// IsVoiced reports whether the nick has voice (or better) on the
// channel.
func (c *Client) IsVoiced(channel, nick string) bool {
	user := c.irc.LookupUser(nick)
	if user == nil {
		return false
	}
	perms, ok := user.Perms.Lookup(channel)
	if !ok {
		return false
	}
	return perms.Voice || perms.IsAdmin()
}

// Run connects and blocks until ctx is cancelled, reconnecting after
// transient connection failures.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.irc.Close()
	}()

	for {
		c.logger.Info("connecting",
			zap.String("server", fmt.Sprintf("%s:%d", c.cfg.Server, c.cfg.Port)),
			zap.Bool("tls", c.cfg.TLS))
		err := c.irc.Connect()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		c.logger.Warn("connection lost, retrying",
			zap.Error(err), zap.Duration("delay", reconnectDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}
