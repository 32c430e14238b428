package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ptgbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithFile(t *testing.T) {
	path := writeConfig(t, `
irc:
  server: irc.oftc.net
  nick: ptgbot
  channel: "#openinfra-events"
  sasl_login: ptgbot
  sasl_password: hunter2
http:
  port: 9000
db:
  filename: /var/lib/ptgbot/ptg.json
log:
  level: debug
  format: console
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "irc.oftc.net", cfg.IRC.Server)
	assert.Equal(t, "ptgbot", cfg.IRC.Nick)
	assert.Equal(t, "#openinfra-events", cfg.IRC.Channel)
	assert.Equal(t, "ptgbot", cfg.IRC.SASLLogin)
	assert.Equal(t, "hunter2", cfg.IRC.SASLPassword)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "/var/lib/ptgbot/ptg.json", cfg.DB.Filename)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestDefaults(t *testing.T) {
	path := writeConfig(t, `
irc:
  server: irc.oftc.net
  nick: ptgbot
  channel: "#ptg"
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 6697, cfg.IRC.Port)
	assert.True(t, cfg.IRC.TLS)
	assert.Equal(t, "localhost", cfg.HTTP.Host)
	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.Equal(t, "ptg.json", cfg.DB.Filename)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
irc:
  server: irc.oftc.net
  nick: ptgbot
  channel: "#ptg"
db:
  filename: from-file.json
`)

	t.Setenv("PTGBOT_IRC_SERVER", "irc.libera.chat")
	t.Setenv("PTGBOT_IRC_SASL_LOGIN", "ptgbot-prod")
	t.Setenv("PTGBOT_DB_FILENAME", "from-env.json")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "irc.libera.chat", cfg.IRC.Server)
	assert.Equal(t, "ptgbot-prod", cfg.IRC.SASLLogin)
	assert.Equal(t, "from-env.json", cfg.DB.Filename)
	assert.Equal(t, "ptgbot", cfg.IRC.Nick, "file values survive where no override exists")
}

func TestEnvironmentOnly(t *testing.T) {
	t.Setenv("PTGBOT_IRC_SERVER", "irc.oftc.net")
	t.Setenv("PTGBOT_IRC_NICK", "ptgbot")
	t.Setenv("PTGBOT_IRC_CHANNEL", "#ptg")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "irc.oftc.net", cfg.IRC.Server)
	assert.Equal(t, 6697, cfg.IRC.Port)
}

func TestMissingFileFails(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing server",
			yaml: "irc:\n  nick: ptgbot\n  channel: \"#ptg\"\n",
			want: "irc.server is required",
		},
		{
			name: "missing nick",
			yaml: "irc:\n  server: irc.oftc.net\n  channel: \"#ptg\"\n",
			want: "irc.nick is required",
		},
		{
			name: "missing channel",
			yaml: "irc:\n  server: irc.oftc.net\n  nick: ptgbot\n",
			want: "irc.channel is required",
		},
		{
			name: "channel without hash",
			yaml: "irc:\n  server: irc.oftc.net\n  nick: ptgbot\n  channel: ptg\n",
			want: "irc.channel must start with '#'",
		},
		{
			name: "port out of range",
			yaml: "irc:\n  server: irc.oftc.net\n  nick: ptgbot\n  channel: \"#ptg\"\n  port: 99999\n",
			want: "out of range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWithFile(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
