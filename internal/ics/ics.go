// Package ics renders per-track calendar exports from the event-state
// document's schedule and slot timing data.
package ics

import (
	"fmt"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/fyrsmithlabs/ptgbot/internal/state"
)

const prodID = "-//Opendev PTGBot//ptg.opendev.org//"

// DefaultSlotDuration applies when a slot carries no duration field.
const DefaultSlotDuration = 60 * time.Minute

// DefaultEtherpad computes the etherpad URL used when a track has no
// explicit override.
func DefaultEtherpad(eventID, track string) string {
	return fmt.Sprintf("https://etherpad.opendev.org/p/%s-%s", eventID, track)
}

type booking struct {
	room string
	slot string
}

// Export renders an iCalendar document with one VEVENT per booked
// (room, slot) cell for the selected team. "ALL" (or the legacy "ptg"
// alias, or an empty string) selects every team. Slots without a
// realtime timestamp are skipped; they cannot be placed on a calendar.
func Export(doc *state.Document, includeTeam string) ([]byte, error) {
	slots := doc.Slots.All()

	bookings := map[string][]booking{}
	rooms := make([]string, 0, len(doc.Schedule))
	for room := range doc.Schedule {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	for _, room := range rooms {
		cells := doc.Schedule[room]
		names := make([]string, 0, len(cells))
		for name := range cells {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			team := cells[name]
			if name == "url" || name == "cap_icon" || name == "cap_desc" || team == "" {
				continue
			}
			bookings[team] = append(bookings[team], booking{room: room, slot: name})
		}
	}

	var teams []string
	if includeTeam == "" || includeTeam == "ALL" || includeTeam == "ptg" {
		for team := range bookings {
			teams = append(teams, team)
		}
		sort.Strings(teams)
	} else {
		teams = []string{includeTeam}
	}

	cal := ical.NewCalendar()
	cal.SetProductId(prodID)
	cal.SetVersion("2.0")

	for _, team := range teams {
		defaultPad := DefaultEtherpad(doc.EventID, team)
		for _, b := range bookings[team] {
			slot, ok := slots[b.slot]
			if !ok || slot.Realtime == "" {
				continue
			}
			start, err := parseRealtime(slot.Realtime)
			if err != nil {
				continue
			}
			duration := DefaultSlotDuration
			if slot.Duration > 0 {
				duration = time.Duration(slot.Duration) * time.Minute
			}

			url := doc.URLs[team]
			if url == "" {
				url = doc.Schedule[b.room]["url"]
			}
			pad := doc.Etherpads[team]
			if pad == "" {
				pad = defaultPad
			}

			uid := start.Format("200601021504") + "/" + b.room + "@ptg.opendev.org"
			event := cal.AddEvent(uid)
			event.SetSummary("[PTG] " + team)
			event.SetDescription("Etherpad: " + pad + "\n")
			event.SetStartAt(start)
			event.SetEndAt(start.Add(duration))
			event.SetLocation(url)
		}
	}

	return []byte(cal.Serialize()), nil
}

// parseRealtime accepts the ISO-8601 variants seen in schedule files,
// with or without a zone offset.
func parseRealtime(value string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
