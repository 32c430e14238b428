// Package state owns the event-state document: the single JSON object
// holding tracks, the room/slot schedule, now/next announcements,
// check-ins and subscriptions. Everything the bot and the web dashboard
// know about the event lives here.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// TimeLayout is the serialization format for check-in and save
// timestamps, kept compatible with existing dashboard consumers.
const TimeLayout = "2006-01-02 15:04:05"

// Palette is the fixed set of colors assigned to tracks that have none.
var Palette = []string{
	"#596468",
	"#9ea8ad",
	"#b57506",
	"#f8ac29",
	"#5b731a",
	"#9dc62d",
	"#993399",
	"#27a3dd",
	"#2a6d3c",
	"#3fa45b",
	"#930a0a",
	"#dc0d0e",
}

// scheduleMetaKeys are per-room metadata entries that live alongside
// slot bookings in the schedule and must be skipped when scanning for
// booked tracks.
var scheduleMetaKeys = map[string]bool{
	"cap_icon": true,
	"cap_desc": true,
	"url":      true,
}

// Slot is a named time period within a day. Slots are read-only
// configuration loaded from an imported schedule.
type Slot struct {
	Name     string `json:"name"`
	Desc     string `json:"desc,omitempty"`
	Realtime string `json:"realtime,omitempty"`
	Duration int    `json:"duration,omitempty"` // minutes, 0 means default
}

// MOTDEntry is one message-of-the-day banner entry.
type MOTDEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// MOTDLevels are the banner levels accepted by ~motd add.
var MOTDLevels = []string{"info", "success", "warning", "danger"}

// CheckIn records a participant's self-reported location. The map key
// is the lower-cased nick; Nick preserves the original case for output.
type CheckIn struct {
	Nick     string  `json:"nick"`
	Location string  `json:"location"`
	In       string  `json:"in"`
	Out      *string `json:"out"`
}

// Document is the event-state document. It is persisted as one JSON
// object and rewritten wholesale on every mutation. Top-level keys not
// modeled here survive import/save round trips via Extra.
type Document struct {
	Tracks        []string                     `json:"tracks"`
	Slots         SlotTable                    `json:"slots"`
	Now           map[string]string            `json:"now"`
	Next          map[string][]string          `json:"next"`
	Etherpads     map[string]string            `json:"etherpads"`
	Colors        map[string]string            `json:"colors"`
	Location      map[string]string            `json:"location"`
	Schedule      map[string]map[string]string `json:"schedule"`
	Voice         int                          `json:"voice"`
	EventID       string                       `json:"eventid"`
	MOTD          []MOTDEntry                  `json:"motd"`
	Links         map[string]string            `json:"links"`
	URLs          map[string]string            `json:"urls"`
	LastCheckIn   map[string]CheckIn           `json:"last_check_in"`
	Subscriptions map[string]*string           `json:"subscriptions"`
	Timestamp     string                       `json:"timestamp,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// NewDocument returns the canonical empty shape with every required
// top-level key present.
func NewDocument() *Document {
	return &Document{
		Tracks:        []string{},
		Slots:         SlotTable{},
		Now:           map[string]string{},
		Next:          map[string][]string{},
		Etherpads:     map[string]string{},
		Colors:        map[string]string{},
		Location:      map[string]string{},
		Schedule:      map[string]map[string]string{},
		MOTD:          []MOTDEntry{},
		Links:         map[string]string{},
		URLs:          map[string]string{},
		LastCheckIn:   map[string]CheckIn{},
		Subscriptions: map[string]*string{},
	}
}

// document is Document without methods, used to avoid recursion in the
// custom JSON round trip.
type document Document

var knownDocumentKeys = []string{
	"tracks", "slots", "now", "next", "etherpads", "colors", "location",
	"schedule", "voice", "eventid", "motd", "links", "urls",
	"last_check_in", "subscriptions", "timestamp",
}

// UnmarshalJSON decodes the known keys and stashes any unknown
// top-level keys so an externally authored document survives a
// load/save cycle intact.
func (d *Document) UnmarshalJSON(b []byte) error {
	var plain document
	if err := json.Unmarshal(b, &plain); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, key := range knownDocumentKeys {
		delete(all, key)
	}
	if len(all) == 0 {
		all = nil
	}
	plain.Extra = all
	*d = Document(plain)
	return nil
}

// MarshalJSON renders the document with deterministic key order
// (sorted, as encoding/json does for maps) so identical states produce
// identical bytes on disk.
func (d Document) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(document(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return b, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for key, raw := range d.Extra {
		if _, taken := all[key]; !taken {
			all[key] = raw
		}
	}
	return json.Marshal(all)
}

// normalize ensures every container exists so mutators can write
// without nil checks, regardless of which keys the loaded file had.
func (d *Document) normalize() {
	if d.Tracks == nil {
		d.Tracks = []string{}
	}
	if d.Now == nil {
		d.Now = map[string]string{}
	}
	if d.Next == nil {
		d.Next = map[string][]string{}
	}
	if d.Etherpads == nil {
		d.Etherpads = map[string]string{}
	}
	if d.Colors == nil {
		d.Colors = map[string]string{}
	}
	if d.Location == nil {
		d.Location = map[string]string{}
	}
	if d.Schedule == nil {
		d.Schedule = map[string]map[string]string{}
	}
	if d.MOTD == nil {
		d.MOTD = []MOTDEntry{}
	}
	if d.Links == nil {
		d.Links = map[string]string{}
	}
	if d.URLs == nil {
		d.URLs = map[string]string{}
	}
	if d.LastCheckIn == nil {
		d.LastCheckIn = map[string]CheckIn{}
	}
	if d.Subscriptions == nil {
		d.Subscriptions = map[string]*string{}
	}
}

// Clone returns a deep copy of the document via a JSON round trip.
func (d *Document) Clone() (*Document, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// scheduleRooms returns the schedule's room names in sorted order.
// Bookings are scanned in this order so lookups stay deterministic.
func (d *Document) scheduleRooms() []string {
	rooms := make([]string, 0, len(d.Schedule))
	for room := range d.Schedule {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// SlotTable maps weekday names to their slot lists while remembering
// the order days were declared in, which drives the fallback when the
// event does not run on the current weekday.
type SlotTable struct {
	days  []string
	slots map[string][]Slot
}

// Days returns the weekday names in declaration order.
func (t SlotTable) Days() []string {
	return t.days
}

// Get returns the slots declared for a weekday.
func (t SlotTable) Get(day string) ([]Slot, bool) {
	slots, ok := t.slots[day]
	return slots, ok
}

// Set declares or replaces a weekday's slot list, appending the day to
// the declaration order if new.
func (t *SlotTable) Set(day string, slots []Slot) {
	if t.slots == nil {
		t.slots = map[string][]Slot{}
	}
	if _, exists := t.slots[day]; !exists {
		t.days = append(t.days, day)
	}
	t.slots[day] = slots
}

// All returns every declared slot indexed by slot name.
func (t SlotTable) All() map[string]Slot {
	index := map[string]Slot{}
	for _, day := range t.days {
		for _, slot := range t.slots[day] {
			index[slot.Name] = slot
		}
	}
	return index
}

func (t *SlotTable) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("slots: expected JSON object")
	}
	out := SlotTable{slots: map[string][]Slot{}}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		day, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("slots: expected string key")
		}
		var slots []Slot
		if err := dec.Decode(&slots); err != nil {
			return fmt.Errorf("slots[%s]: %w", day, err)
		}
		out.Set(day, slots)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = out
	return nil
}

func (t SlotTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, day := range t.days {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(day)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(t.slots[day])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
