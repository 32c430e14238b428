package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Store owns the event-state document and its load/mutate/persist
// cycle. Every mutator performs exactly one save; command handlers only
// ever touch the document through Store methods.
//
// The store is not safe for concurrent use. Command processing is
// strictly sequential by design, so no locking is needed.
type Store struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
	client *http.Client
	doc    *Document
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, used for timestamps and for
// resolving "today" in room lookups.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithHTTPClient overrides the client used by ImportFromURL.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) { s.client = client }
}

// New loads the document from path if it exists, otherwise initializes
// the canonical empty shape. The document is saved once immediately so
// the web dashboard always has a file to read.
func New(path string, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:   path,
		logger: logger,
		now:    time.Now,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		doc.normalize()
		s.doc = &doc
	case os.IsNotExist(err):
		s.doc = NewDocument()
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Document returns a deep copy of the current document.
func (s *Store) Document() (*Document, error) {
	return s.doc.Clone()
}

// save rewrites the backing file in full: refresh the timestamp, keep
// the track list sorted, write to a temp file and rename it over the
// old version so external readers never see a half-written document.
func (s *Store) save() error {
	s.doc.Timestamp = s.now().Format(TimeLayout)
	sort.Strings(s.doc.Tracks)

	data, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".ptgbot-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// ImportFromURL fetches a JSON document and merges it into the current
// one. The state is left unchanged when the fetch or parse fails.
func (s *Store) ImportFromURL(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return s.ImportBytes(raw)
}

// ImportBytes merges an externally supplied document into the current
// one: top-level keys from the import overwrite the current ones, any
// track referenced by the merged schedule is auto-created, and tracks
// without a color get one. Importing the same bytes twice is
// idempotent.
func (s *Store) ImportBytes(raw []byte) error {
	current, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(current, &base); err != nil {
		return err
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(raw, &patch); err != nil {
		return fmt.Errorf("parse import: %w", err)
	}
	for key, value := range patch {
		base[key] = value
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return err
	}
	var doc Document
	if err := json.Unmarshal(merged, &doc); err != nil {
		return fmt.Errorf("parse merged document: %w", err)
	}
	doc.normalize()
	s.doc = &doc

	for _, room := range s.doc.scheduleRooms() {
		for slot, track := range s.doc.Schedule[room] {
			if scheduleMetaKeys[slot] || track == "" {
				continue
			}
			if !s.IsValidTrack(track) {
				s.doc.Tracks = append(s.doc.Tracks, track)
			}
		}
	}
	s.colorize()
	return s.save()
}

// colorize assigns a palette color to every track lacking one.
func (s *Store) colorize() {
	for _, track := range s.doc.Tracks {
		if _, ok := s.doc.Colors[track]; !ok {
			s.doc.Colors[track] = Palette[rand.IntN(len(Palette))]
		}
	}
}

// IsValidTrack reports whether track is on the roster.
func (s *Store) IsValidTrack(track string) bool {
	for _, t := range s.doc.Tracks {
		if t == track {
			return true
		}
	}
	return false
}

// ListTracks returns the sorted track list.
func (s *Store) ListTracks() []string {
	tracks := append([]string(nil), s.doc.Tracks...)
	sort.Strings(tracks)
	return tracks
}

// TrackRoomToday returns the first room the track is scheduled in
// today, or "" if it has none. When no slots are defined for the
// current weekday the first declared day is used instead.
func (s *Store) TrackRoomToday(track string) string {
	day := s.now().Weekday().String()
	slots, ok := s.doc.Slots.Get(day)
	if !ok {
		days := s.doc.Slots.Days()
		if len(days) == 0 {
			return ""
		}
		slots, _ = s.doc.Slots.Get(days[0])
	}
	for _, room := range s.doc.scheduleRooms() {
		bookings := s.doc.Schedule[room]
		for _, slot := range slots {
			if bookings[slot.Name] == track {
				return room
			}
		}
	}
	return ""
}

// Location returns the track's location override, or "".
func (s *Store) Location(track string) string {
	return s.doc.Location[track]
}

// SetNow records the track's current session. Any queued "next"
// announcements are dropped, and the location is auto-filled from
// today's room when none was set manually.
func (s *Store) SetNow(track, session string) error {
	s.doc.Now[track] = session
	if room := s.TrackRoomToday(track); room != "" {
		if _, ok := s.doc.Location[track]; !ok {
			s.doc.Location[track] = room
		}
	}
	delete(s.doc.Next, track)
	return s.save()
}

// AddNext appends a session to the track's "next" queue.
func (s *Store) AddNext(track, session string) error {
	s.doc.Next[track] = append(s.doc.Next[track], session)
	return s.save()
}

// CleanTracks clears now/next announcements for the given tracks.
func (s *Store) CleanTracks(tracks []string) error {
	for _, track := range tracks {
		delete(s.doc.Now, track)
		delete(s.doc.Next, track)
	}
	return s.save()
}

// SetEtherpad sets the track's etherpad override. "auto" removes the
// override so the computed default applies again; removing an override
// that was never set is a no-op.
func (s *Store) SetEtherpad(track, url string) error {
	if url == "auto" {
		delete(s.doc.Etherpads, track)
	} else {
		s.doc.Etherpads[track] = url
	}
	return s.save()
}

// SetURL sets the track's external URL override; "none" removes it.
func (s *Store) SetURL(track, url string) error {
	if url == "none" {
		delete(s.doc.URLs, track)
	} else {
		s.doc.URLs[track] = url
	}
	return s.save()
}

// SetColor sets the track's display color. No format validation.
func (s *Store) SetColor(track, color string) error {
	s.doc.Colors[track] = color
	return s.save()
}

// SetLocation sets the track's free-text location override.
func (s *Store) SetLocation(track, location string) error {
	s.doc.Location[track] = location
	return s.save()
}

// IsSlotValidAndEmpty reports whether (room, slot) exists in the
// schedule and holds no track.
func (s *Store) IsSlotValidAndEmpty(room, slot string) bool {
	bookings, ok := s.doc.Schedule[room]
	if !ok {
		return false
	}
	track, ok := bookings[slot]
	return ok && track == ""
}

// IsSlotBookedForTrack reports whether (room, slot) currently holds
// exactly this track.
func (s *Store) IsSlotBookedForTrack(track, room, slot string) bool {
	bookings, ok := s.doc.Schedule[room]
	if !ok {
		return false
	}
	return bookings[slot] == track
}

// Book assigns the track to (room, slot). Callers check
// IsSlotValidAndEmpty first.
func (s *Store) Book(track, room, slot string) error {
	s.doc.Schedule[room][slot] = track
	return s.save()
}

// Unbook clears (room, slot) if it exists.
func (s *Store) Unbook(room, slot string) error {
	if bookings, ok := s.doc.Schedule[room]; ok {
		if _, ok := bookings[slot]; ok {
			bookings[slot] = ""
		}
	}
	return s.save()
}

// AddTracks adds the given track names to the roster, skipping
// duplicates, and colorizes any new ones.
func (s *Store) AddTracks(tracks []string) error {
	for _, track := range tracks {
		if !s.IsValidTrack(track) {
			s.doc.Tracks = append(s.doc.Tracks, track)
		}
	}
	s.colorize()
	return s.save()
}

// DelTracks removes the given track names from the roster.
func (s *Store) DelTracks(tracks []string) error {
	for _, track := range tracks {
		for i, t := range s.doc.Tracks {
			if t == track {
				s.doc.Tracks = append(s.doc.Tracks[:i], s.doc.Tracks[i+1:]...)
				break
			}
		}
	}
	return s.save()
}

// IsVoiceRequired reports whether track commands require voice.
func (s *Store) IsVoiceRequired() bool {
	return s.doc.Voice == 1
}

// RequireVoice restricts track commands to voiced users.
func (s *Store) RequireVoice() error {
	s.doc.Voice = 1
	return s.save()
}

// AllowEveryone lifts the voice requirement.
func (s *Store) AllowEveryone() error {
	s.doc.Voice = 0
	return s.save()
}

// MOTD returns a copy of the banner queue.
func (s *Store) MOTD() []MOTDEntry {
	return append([]MOTDEntry(nil), s.doc.MOTD...)
}

// MOTDAdd appends a banner entry. Level validation happens in the
// admin handler so the reply can name the bad level.
func (s *Store) MOTDAdd(level, message string) error {
	s.doc.MOTD = append(s.doc.MOTD, MOTDEntry{Level: level, Message: message})
	return s.save()
}

// MOTDHas reports whether the 1-based index refers to an existing entry.
func (s *Store) MOTDHas(num int) bool {
	return num >= 1 && num <= len(s.doc.MOTD)
}

// MOTDDel removes the 1-based entry.
func (s *Store) MOTDDel(num int) error {
	i := num - 1
	s.doc.MOTD = append(s.doc.MOTD[:i], s.doc.MOTD[i+1:]...)
	return s.save()
}

// MOTDClean empties the banner queue.
func (s *Store) MOTDClean() error {
	s.doc.MOTD = []MOTDEntry{}
	return s.save()
}

// MOTDReorder rebuilds the queue in the given order of 1-based
// indices. Entries not listed are dropped; that is the documented
// behavior, not an oversight.
func (s *Store) MOTDReorder(order []int) error {
	reordered := make([]MOTDEntry, 0, len(order))
	for _, num := range order {
		reordered = append(reordered, s.doc.MOTD[num-1])
	}
	s.doc.MOTD = reordered
	return s.save()
}

// LastCheckIn returns the check-in record for a nick, matched
// case-insensitively.
func (s *Store) LastCheckIn(nick string) (CheckIn, bool) {
	record, ok := s.doc.LastCheckIn[strings.ToLower(nick)]
	return record, ok
}

// RecordCheckIn overwrites the nick's check-in record with a fresh
// in-timestamp and no checkout.
func (s *Store) RecordCheckIn(nick, location string) error {
	s.doc.LastCheckIn[strings.ToLower(nick)] = CheckIn{
		Nick:     nick,
		Location: location,
		In:       s.now().Format(TimeLayout),
	}
	return s.save()
}

// RecordCheckOut stamps the nick's checkout time and returns the
// location that was checked out of.
func (s *Store) RecordCheckOut(nick string) (string, error) {
	key := strings.ToLower(nick)
	record, ok := s.doc.LastCheckIn[key]
	if !ok {
		return "", fmt.Errorf("nick %q never checked in", nick)
	}
	out := s.now().Format(TimeLayout)
	record.Out = &out
	s.doc.LastCheckIn[key] = record
	return record.Location, s.save()
}

// Subscription returns the nick's notification regex, or nil when the
// nick never subscribed or explicitly unsubscribed.
func (s *Store) Subscription(nick string) *string {
	return s.doc.Subscriptions[nick]
}

// Subscriptions returns a copy of the subscription table. Entries with
// a nil value are explicit unsubscriptions.
func (s *Store) Subscriptions() map[string]*string {
	out := make(map[string]*string, len(s.doc.Subscriptions))
	for nick, re := range s.doc.Subscriptions {
		out[nick] = re
	}
	return out
}

// SetSubscription stores the nick's regex; nil marks an explicit
// unsubscription, distinct from never having subscribed.
func (s *Store) SetSubscription(nick string, regex *string) error {
	s.doc.Subscriptions[nick] = regex
	return s.save()
}

// Empty resets the document to the canonical empty shape.
func (s *Store) Empty() error {
	s.doc = NewDocument()
	return s.save()
}

// NewDay clears the ephemeral per-day state (announcements, locations,
// check-ins and the banner queue) while preserving tracks, schedule,
// colors and subscriptions.
func (s *Store) NewDay() error {
	s.doc.Now = map[string]string{}
	s.doc.Next = map[string][]string{}
	s.doc.Location = map[string]string{}
	s.doc.LastCheckIn = map[string]CheckIn{}
	s.doc.MOTD = []MOTDEntry{}
	return s.save()
}
