package bot

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ptgbot/internal/state"
)

const channel = "#openinfra-events"

var fixture = []byte(`{
  "tracks": ["swift", "nova"],
  "slots": {
    "Friday": [{"name": "FriP1", "realtime": "2026-09-04T09:00:00"}],
    "Tuesday": [{"name": "TueP2", "realtime": "2026-09-08T14:00:00"}]
  },
  "schedule": {
    "Aspen": {"FriP1": "", "url": "https://example.com/aspen"},
    "Vail": {"TueP2": ""}
  },
  "eventid": "oct2026"
}`)

type message struct {
	target string
	text   string
}

// fakeSender records outbound messages in order.
type fakeSender struct {
	sent []message
}

func (f *fakeSender) Send(target, text string) {
	f.sent = append(f.sent, message{target: target, text: text})
}

func (f *fakeSender) texts(target string) []string {
	var out []string
	for _, m := range f.sent {
		if m.target == target {
			out = append(out, m.text)
		}
	}
	return out
}

// fakePrivs answers every channel with the configured flags.
type fakePrivs struct {
	op     bool
	voiced bool
}

func (f fakePrivs) IsOp(channel, nick string) bool     { return f.op }
func (f fakePrivs) IsVoiced(channel, nick string) bool { return f.voiced }

func newTestProcessor(t *testing.T) (*Processor, *state.Store) {
	t.Helper()
	store, err := state.New(filepath.Join(t.TempDir(), "ptg.json"), zap.NewNop(),
		state.WithClock(func() time.Time {
			return time.Date(2026, time.September, 4, 10, 0, 0, 0, time.UTC)
		}))
	require.NoError(t, err)
	require.NoError(t, store.ImportBytes(fixture))
	return New(store, zap.NewNop()), store
}

func TestHandleMessageIgnoresChatter(t *testing.T) {
	p, _ := newTestProcessor(t)
	sender := &fakeSender{}

	p.HandleMessage(sender, fakePrivs{}, "ali", channel, "good morning everyone")
	p.HandleMessage(sender, fakePrivs{}, "ali", channel, "the #ptg is great")
	assert.Empty(t, sender.sent)
}

func TestHelpReply(t *testing.T) {
	p, _ := newTestProcessor(t)
	sender := &fakeSender{}

	p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#help")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, channel, sender.sent[0].target)
	assert.Equal(t, "ali: See PTGbot documentation at: "+DefaultDocURL, sender.sent[0].text)
}

func TestUnknownTrack(t *testing.T) {
	p, _ := newTestProcessor(t)
	sender := &fakeSender{}

	p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#neutron now routing")
	assert.Equal(t, []string{
		"ali: Unknown track 'neutron'",
		"ali: Active tracks: nova swift",
	}, sender.texts(channel))
}

func TestTrackNow(t *testing.T) {
	t.Run("missing sentence", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#swift now")
		assert.Equal(t, []string{"ali: Missing sentence (#TRACK now ...)"}, sender.texts(channel))
	})

	t.Run("silent success with a room today", func(t *testing.T) {
		p, store := newTestProcessor(t)
		require.NoError(t, store.Book("swift", "Aspen", "FriP1"))
		sender := &fakeSender{}

		p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#swift now discussing replication")
		assert.Empty(t, sender.sent)

		doc, err := store.Document()
		require.NoError(t, err)
		assert.Equal(t, "discussing replication", doc.Now["swift"])
	})

	t.Run("advisory without a room today", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#swift now discussing replication")
		assert.Equal(t, []string{
			"ali: Message added, but please note that track 'swift' does not appear to have a room scheduled today.",
		}, sender.texts(channel))
	})

	t.Run("now drops the queued next entries", func(t *testing.T) {
		p, store := newTestProcessor(t)
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#swift next reviewing specs")
		p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#swift now daily standup")

		doc, err := store.Document()
		require.NoError(t, err)
		assert.Equal(t, "daily standup", doc.Now["swift"])
		assert.NotContains(t, doc.Next, "swift")
	})
}

func TestTrackCommandValidation(t *testing.T) {
	p, store := newTestProcessor(t)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"missing command", "#swift", "Missing track command (#TRACK [now|next|clean...] ...)"},
		{"clean takes no params", "#swift clean now", "'#TRACK clean' does not take any parameter"},
		{"etherpad needs one url", "#swift etherpad", "'#TRACK etherpad' takes a single URL parameter"},
		{"url needs one param", "#swift url a b", "'#TRACK url' takes a single URL parameter"},
		{"color needs one param", "#swift color", "'#TRACK color' takes a single colorcode parameter"},
		{"book needs one slot", "#swift book", "'#TRACK book' takes a single slotname parameter"},
		{"unknown adverb", "#swift dances all night", "Unknown command 'dances'. Did you mean: swift now dances... ?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			p.HandleMessage(sender, fakePrivs{}, "ali", channel, tt.text)
			assert.Equal(t, []string{"ali: " + tt.want}, sender.texts(channel))
		})
	}

	doc, err := store.Document()
	require.NoError(t, err)
	assert.Empty(t, doc.Now, "failed commands must not mutate state")
}

func TestVoiceGate(t *testing.T) {
	p, store := newTestProcessor(t)
	require.NoError(t, store.RequireVoice())

	t.Run("unvoiced user is refused", func(t *testing.T) {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#swift clean")
		assert.Equal(t, []string{"ali: Need voice to issue commands"}, sender.texts(channel))
	})

	t.Run("voiced user passes", func(t *testing.T) {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{voiced: true}, "ali", channel, "#swift clean")
		assert.Empty(t, sender.sent)
	})

	t.Run("op passes without voice", func(t *testing.T) {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{op: true}, "ali", channel, "#swift clean")
		assert.Empty(t, sender.sent)
	})

	t.Run("direct messages bypass the gate", func(t *testing.T) {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{}, "ali", "", "#swift clean")
		assert.Empty(t, sender.sent)
	})
}

func TestBookingFlow(t *testing.T) {
	p, _ := newTestProcessor(t)

	run := func(nick, text string) *fakeSender {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{}, nick, channel, text)
		return sender
	}

	sender := run("ali", "#swift book Aspen-FriP1")
	assert.Equal(t, []string{"ali: Room Aspen is now booked on FriP1 for swift"}, sender.texts(channel))

	sender = run("bob", "#nova book Aspen-FriP1")
	assert.Equal(t, []string{"bob: Slot 'Aspen-FriP1' is invalid (or booked)"}, sender.texts(channel))

	sender = run("bob", "#nova unbook Aspen-FriP1")
	assert.Equal(t, []string{"bob: Slot 'Aspen-FriP1' is invalid (or not booked for nova)"}, sender.texts(channel))

	sender = run("ali", "#swift unbook Aspen-FriP1")
	assert.Equal(t, []string{"ali: Room Aspen (previously booked for swift) is now free on FriP1"}, sender.texts(channel))

	sender = run("bob", "#nova book Aspen-FriP1")
	assert.Equal(t, []string{"bob: Room Aspen is now booked on FriP1 for nova"}, sender.texts(channel))
}

func TestAdminGate(t *testing.T) {
	p, _ := newTestProcessor(t)

	t.Run("non-op in channel is refused", func(t *testing.T) {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{voiced: true}, "ali", channel, "~list")
		assert.Equal(t, []string{"ali: Need op for admin commands"}, sender.texts(channel))
	})

	t.Run("direct message is refused", func(t *testing.T) {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{op: true}, "ali", "", "~list")
		assert.Equal(t, []string{"Need op for admin commands"}, sender.texts("ali"))
	})

	t.Run("op in channel passes", func(t *testing.T) {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{op: true}, "ali", channel, "~list")
		assert.Equal(t, []string{"ali: Available tracks: nova swift"}, sender.texts(channel))
	})
}

func TestAdminRoster(t *testing.T) {
	p, store := newTestProcessor(t)
	op := fakePrivs{op: true}

	sender := &fakeSender{}
	p.HandleMessage(sender, op, "ali", channel, "~add cinder glance")
	assert.Empty(t, sender.sent)
	assert.Equal(t, []string{"cinder", "glance", "nova", "swift"}, store.ListTracks())

	sender = &fakeSender{}
	p.HandleMessage(sender, op, "ali", channel, "~del glance")
	assert.Empty(t, sender.sent)
	assert.Equal(t, []string{"cinder", "nova", "swift"}, store.ListTracks())

	sender = &fakeSender{}
	p.HandleMessage(sender, op, "ali", channel, "~add")
	assert.Equal(t, []string{"ali: This command takes one or more arguments"}, sender.texts(channel))

	sender = &fakeSender{}
	p.HandleMessage(sender, op, "ali", channel, "~frobnicate")
	assert.Equal(t, []string{"ali: Unknown command 'frobnicate'"}, sender.texts(channel))
}

func TestAdminMOTD(t *testing.T) {
	p, store := newTestProcessor(t)
	op := fakePrivs{op: true}

	run := func(text string) *fakeSender {
		sender := &fakeSender{}
		p.HandleMessage(sender, op, "ali", channel, text)
		return sender
	}

	assert.Empty(t, run("~motd add info Welcome to the PTG").sent)
	assert.Empty(t, run("~motd add warning Lunch moved to 1pm").sent)

	sender := run("~motd add blinking Hello")
	assert.Equal(t, []string{
		"ali: Incorrect message level 'blinking' (should be info, success, warning or danger)",
	}, sender.texts(channel))

	sender = run("~motd del 5")
	assert.Equal(t, []string{"ali: Incorrect message number 5"}, sender.texts(channel))

	assert.Empty(t, run("~motd reorder 2 1").sent)
	queue := store.MOTD()
	require.Len(t, queue, 2)
	assert.Equal(t, "Lunch moved to 1pm", queue[0].Message)
	assert.Equal(t, "Welcome to the PTG", queue[1].Message)

	assert.Empty(t, run("~motd del 1").sent)
	queue = store.MOTD()
	require.Len(t, queue, 1)
	assert.Equal(t, "Welcome to the PTG", queue[0].Message)

	assert.Empty(t, run("~motd clean").sent)
	assert.Empty(t, store.MOTD())

	sender = run("~motd")
	assert.Equal(t, []string{"ali: Missing subcommand (~motd add|del|clean|reorder ...)"}, sender.texts(channel))
}

func TestAdminVoiceAndNewDay(t *testing.T) {
	p, store := newTestProcessor(t)
	op := fakePrivs{op: true}

	sender := &fakeSender{}
	p.HandleMessage(sender, op, "ali", channel, "~requirevoice")
	assert.Empty(t, sender.sent)
	assert.True(t, store.IsVoiceRequired())

	p.HandleMessage(sender, op, "ali", channel, "~alloweveryone")
	assert.False(t, store.IsVoiceRequired())

	require.NoError(t, store.SetNow("swift", "sync"))
	p.HandleMessage(sender, op, "ali", channel, "~newday")
	doc, err := store.Document()
	require.NoError(t, err)
	assert.Empty(t, doc.Now)
	assert.Equal(t, []string{"nova", "swift"}, store.ListTracks())
}

func TestAdminFetchDB(t *testing.T) {
	op := fakePrivs{op: true}

	t.Run("missing url", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		sender := &fakeSender{}
		p.HandleMessage(sender, op, "ali", channel, "~fetchdb")
		assert.Equal(t, []string{"ali: Missing URL to fetch (~fetchdb URL)"}, sender.texts(channel))
	})

	t.Run("successful fetch replaces the roster", func(t *testing.T) {
		p, store := newTestProcessor(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tracks": ["cinder"]}`))
		}))
		defer srv.Close()

		sender := &fakeSender{}
		p.HandleMessage(sender, op, "ali", channel, "~fetchdb "+srv.URL)
		assert.Equal(t, []string{"ali: Loaded DB from " + srv.URL}, sender.texts(channel))
		assert.Equal(t, []string{"cinder"}, store.ListTracks())
	})

	t.Run("server error is reported, state unchanged", func(t *testing.T) {
		p, store := newTestProcessor(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		before := store.ListTracks()
		sender := &fakeSender{}
		p.HandleMessage(sender, op, "ali", channel, "~fetchdb "+srv.URL)
		replies := sender.texts(channel)
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0], "ali: Error loading DB:")
		assert.Equal(t, before, store.ListTracks())
	})

	t.Run("malformed body is reported, state unchanged", func(t *testing.T) {
		p, store := newTestProcessor(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		}))
		defer srv.Close()

		before := store.ListTracks()
		sender := &fakeSender{}
		p.HandleMessage(sender, op, "ali", channel, "~fetchdb "+srv.URL)
		replies := sender.texts(channel)
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0], "ali: Error loading DB:")
		assert.Equal(t, before, store.ListTracks())
	})

	t.Run("unreachable server is reported", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		sender := &fakeSender{}
		p.HandleMessage(sender, op, "ali", channel, "~fetchdb http://127.0.0.1:1/ptg.json")
		replies := sender.texts(channel)
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0], "ali: Error loading DB:")
	})
}

func TestUserCheckInFlow(t *testing.T) {
	p, _ := newTestProcessor(t)

	dm := func(nick, text string) *fakeSender {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{}, nick, "", text)
		return sender
	}

	sender := dm("ali", "in")
	assert.Equal(t, []string{"The 'in' command should be followed by a location."}, sender.texts("ali"))

	sender = dm("ali", "in #neutron")
	assert.Equal(t, []string{"Unrecognised track #neutron"}, sender.texts("ali"))

	// A bare track name gets the '#' prefix added.
	sender = dm("ali", "in Swift")
	assert.Equal(t, []string{"OK, checked into #swift - thanks for the update!"}, sender.texts("ali"))

	sender = dm("bob", "seen ali")
	assert.Equal(t, []string{"ali was last seen in #swift at 2026-09-04 10:00:00"}, sender.texts("bob"))

	sender = dm("ali", "out now")
	assert.Equal(t, []string{"The 'out' command does not accept any extra parameters."}, sender.texts("ali"))

	sender = dm("ali", "out")
	assert.Equal(t, []string{"OK, checked out of #swift - thanks for the update!"}, sender.texts("ali"))

	sender = dm("ali", "out")
	assert.Equal(t, []string{"You already checked out of #swift at 2026-09-04 10:00:00!"}, sender.texts("ali"))

	sender = dm("bob", "seen ali")
	assert.Equal(t, []string{"ali checked out of #swift at 2026-09-04 10:00:00"}, sender.texts("bob"))

	sender = dm("bob", "seen ghost")
	assert.Equal(t, []string{"ghost never checked in anywhere"}, sender.texts("bob"))

	sender = dm("bob", "out")
	assert.Equal(t, []string{"You weren't checked in anywhere yet!"}, sender.texts("bob"))

	sender = dm("bob", "seen")
	assert.Equal(t, []string{"The 'seen' command needs a single nick argument."}, sender.texts("bob"))
}

func TestUserFreeFormLocation(t *testing.T) {
	p, store := newTestProcessor(t)
	sender := &fakeSender{}

	p.HandleMessage(sender, fakePrivs{}, "ali", "", "in the hotel lobby")
	assert.Equal(t, []string{"OK, checked into the hotel lobby - thanks for the update!"}, sender.texts("ali"))

	record, ok := store.LastCheckIn("ali")
	require.True(t, ok)
	assert.Equal(t, "the hotel lobby", record.Location)
}

func TestBareUserCommandInChannelIgnored(t *testing.T) {
	p, _ := newTestProcessor(t)
	sender := &fakeSender{}

	p.HandleMessage(sender, fakePrivs{}, "ali", channel, "in #swift")
	assert.Empty(t, sender.sent)
}

func TestSubscriptionFlow(t *testing.T) {
	p, _ := newTestProcessor(t)

	dm := func(nick, text string) *fakeSender {
		sender := &fakeSender{}
		p.HandleMessage(sender, fakePrivs{}, nick, "", text)
		return sender
	}

	sender := dm("carol", "subscribe")
	assert.Equal(t, []string{"You don't have a subscription regex set yet"}, sender.texts("carol"))

	sender = dm("carol", "subscribe [")
	require.Len(t, sender.texts("carol"), 1)
	assert.Contains(t, sender.texts("carol")[0], "Invalid regex:")

	sender = dm("carol", "subscribe swift|nova")
	assert.Equal(t, []string{"Subscription set to swift|nova"}, sender.texts("carol"))

	sender = dm("carol", "subscribe")
	assert.Equal(t, []string{"Your current subscription regex is: swift|nova"}, sender.texts("carol"))

	sender = dm("carol", "subscribe nova")
	assert.Equal(t, []string{"Subscription set to nova (was swift|nova)"}, sender.texts("carol"))

	sender = dm("carol", "unsubscribe")
	assert.Equal(t, []string{"Cancelled subscription nova"}, sender.texts("carol"))

	sender = dm("carol", "unsubscribe")
	assert.Equal(t, []string{"You don't have a subscription regex set yet"}, sender.texts("carol"))
}

func TestNotificationFanOut(t *testing.T) {
	p, store := newTestProcessor(t)
	require.NoError(t, store.Book("swift", "Aspen", "FriP1"))

	dm := func(nick, text string) {
		p.HandleMessage(&fakeSender{}, fakePrivs{}, nick, "", text)
	}
	dm("carol", "subscribe #swift")
	dm("dave", "subscribe neutron")
	dm("erin", "subscribe SWIFT")
	dm("frank", "subscribe swift")
	dm("frank", "unsubscribe")

	sender := &fakeSender{}
	p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#swift now discussing replication")

	assert.Equal(t, []string{"now in #swift (Aspen): discussing replication"}, sender.texts("carol"))
	assert.Equal(t, []string{"now in #swift (Aspen): discussing replication"}, sender.texts("erin"),
		"matching is case-insensitive")
	assert.Empty(t, sender.texts("dave"))
	assert.Empty(t, sender.texts("frank"), "unsubscribed nicks get nothing")
}

// panickyPrivs blows up on the voice lookup, standing in for any
// unexpected fault inside message processing.
type panickyPrivs struct{}

func (panickyPrivs) IsOp(channel, nick string) bool { return false }
func (panickyPrivs) IsVoiced(channel, nick string) bool {
	panic("permission lookup exploded")
}

func TestAirbagRecoversPanics(t *testing.T) {
	p, store := newTestProcessor(t)
	require.NoError(t, store.RequireVoice())

	sender := &fakeSender{}
	require.NotPanics(t, func() {
		p.HandleMessage(sender, panickyPrivs{}, "ali", channel, "#swift clean")
	})
	require.Len(t, sender.sent, 1)
	assert.Equal(t, channel, sender.sent[0].target)
	assert.Equal(t, "Bot airbag activated: permission lookup exploded", sender.sent[0].text)

	// The processor stays usable after a recovered panic.
	sender = &fakeSender{}
	p.HandleMessage(sender, fakePrivs{voiced: true}, "ali", channel, "#swift clean")
	assert.Empty(t, sender.sent)
}

func TestCommandMetricsDistinguishOutcomes(t *testing.T) {
	p, _ := newTestProcessor(t)

	okBefore := testutil.ToFloat64(commandsTotal.WithLabelValues("track", resultOK))
	rejectedBefore := testutil.ToFloat64(commandsTotal.WithLabelValues("track", resultRejected))

	sender := &fakeSender{}
	// A booking confirmation replies but is still a success.
	p.HandleMessage(sender, fakePrivs{}, "ali", channel, "#swift book Aspen-FriP1")
	// Booking an occupied slot is a rejection.
	p.HandleMessage(sender, fakePrivs{}, "bob", channel, "#nova book Aspen-FriP1")

	assert.Equal(t, okBefore+1, testutil.ToFloat64(commandsTotal.WithLabelValues("track", resultOK)))
	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(commandsTotal.WithLabelValues("track", resultRejected)))
}

func TestUnknownUserCommand(t *testing.T) {
	p, _ := newTestProcessor(t)
	sender := &fakeSender{}

	p.HandleMessage(sender, fakePrivs{}, "ali", "", "+frobnicate")
	assert.Equal(t, []string{"Unknown user command. Should be: in, out, seen, or subscribe"}, sender.texts("ali"))
}
