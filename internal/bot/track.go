package bot

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Outcome labels for the command counter.
const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultError    = "error"
)

// processTrack validates and applies a #track directive. Successful
// mutations are silent except for booking confirmations and the
// not-scheduled-today advisory; every returned line is a reply for the
// issuing user. The second return value labels the outcome for the
// command counter.
func (p *Processor) processTrack(sender Sender, track string, args []string) ([]string, string) {
	if !p.store.IsValidTrack(track) {
		return []string{
			fmt.Sprintf("Unknown track '%s'", track),
			p.trackList(),
		}, resultRejected
	}

	if len(args) < 1 {
		return []string{"Missing track command (#TRACK [now|next|clean...] ...)"}, resultRejected
	}

	adverb := strings.ToLower(args[0])
	params := args[1:]
	sentence := strings.Join(params, " ")

	switch adverb {
	case "now":
		if len(params) < 1 {
			return []string{"Missing sentence (#TRACK now ...)"}, resultRejected
		}
		if err := p.store.SetNow(track, sentence); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		p.notify(sender, track, adverb, sentence)
		return p.notScheduledToday(track), resultOK

	case "next":
		if len(params) < 1 {
			return []string{"Missing sentence (#TRACK next ...)"}, resultRejected
		}
		if err := p.store.AddNext(track, sentence); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		p.notify(sender, track, adverb, sentence)
		return p.notScheduledToday(track), resultOK

	case "clean":
		if len(params) > 0 {
			return []string{"'#TRACK clean' does not take any parameter"}, resultRejected
		}
		if err := p.store.CleanTracks([]string{track}); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "etherpad":
		if len(params) != 1 {
			return []string{"'#TRACK etherpad' takes a single URL parameter"}, resultRejected
		}
		if err := p.store.SetEtherpad(track, params[0]); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "url":
		if len(params) != 1 {
			return []string{"'#TRACK url' takes a single URL parameter"}, resultRejected
		}
		if err := p.store.SetURL(track, params[0]); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "color":
		if len(params) != 1 {
			return []string{"'#TRACK color' takes a single colorcode parameter"}, resultRejected
		}
		if err := p.store.SetColor(track, params[0]); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "location":
		if err := p.store.SetLocation(track, sentence); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "book":
		if len(params) != 1 {
			return []string{"'#TRACK book' takes a single slotname parameter"}, resultRejected
		}
		room, slot := splitSlotRef(params[0])
		if !p.store.IsSlotValidAndEmpty(room, slot) {
			return []string{fmt.Sprintf("Slot '%s' is invalid (or booked)", params[0])}, resultRejected
		}
		if err := p.store.Book(track, room, slot); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return []string{fmt.Sprintf("Room %s is now booked on %s for %s", room, slot, track)}, resultOK

	case "unbook":
		if len(params) != 1 {
			return []string{"'#TRACK unbook' takes a single slotname parameter"}, resultRejected
		}
		room, slot := splitSlotRef(params[0])
		if !p.store.IsSlotBookedForTrack(track, room, slot) {
			return []string{fmt.Sprintf("Slot '%s' is invalid (or not booked for %s)", params[0], track)}, resultRejected
		}
		if err := p.store.Unbook(room, slot); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return []string{fmt.Sprintf("Room %s (previously booked for %s) is now free on %s", room, track, slot)}, resultOK

	default:
		return []string{fmt.Sprintf("Unknown command '%s'. Did you mean: %s now %s... ?", adverb, track, adverb)}, resultRejected
	}
}

// splitSlotRef splits ROOM-SLOT on the first dash.
func splitSlotRef(ref string) (room, slot string) {
	room, slot, _ = strings.Cut(ref, "-")
	return room, slot
}

// notScheduledToday returns the advisory appended to now/next
// confirmations when the track has no room booked today.
func (p *Processor) notScheduledToday(track string) []string {
	if p.store.TrackRoomToday(track) != "" {
		return nil
	}
	return []string{fmt.Sprintf(
		"Message added, but please note that track '%s' does not appear to have a room scheduled today.",
		track)}
}

// saveError turns a persistence failure into a reply and logs it. The
// command is lost but the process keeps running.
func (p *Processor) saveError(err error) string {
	p.logger.Error("failed to persist database", zap.Error(err))
	return fmt.Sprintf("Error saving database: %v", err)
}
