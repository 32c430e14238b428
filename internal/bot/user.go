package bot

import (
	"fmt"
	"regexp"
	"strings"
)

// normalizeLocation checks a check-in location against the known
// tracks. A '#'-prefixed location must name a known track; a bare
// location that matches a track case-insensitively gets the '#' prefix
// added; anything else is kept verbatim as free-form text. Track
// matches are lower-cased, assuming all registered tracks are. A
// non-empty badTrack reports a '#'-reference to an unknown track.
func normalizeLocation(tracks []string, location string) (normalized, badTrack string) {
	known := make(map[string]bool, len(tracks))
	for _, track := range tracks {
		known[track] = true
	}
	if strings.HasPrefix(location, "#") {
		track := strings.ToLower(location[1:])
		if !known[track] {
			return "", track
		}
		return strings.ToLower(location), ""
	}
	if known[strings.ToLower(location)] {
		return "#" + strings.ToLower(location), ""
	}
	return location, ""
}

// processUser handles the personal commands. These work the same from
// the channel (with a sigil) and from direct messages, and never need
// voice or op.
func (p *Processor) processUser(nick, cmd string, args []string) ([]string, string) {
	switch cmd {
	case "in":
		if len(args) == 0 {
			return []string{"The 'in' command should be followed by a location."}, resultRejected
		}
		location, badTrack := normalizeLocation(p.store.ListTracks(), strings.Join(args, " "))
		if badTrack != "" {
			return []string{fmt.Sprintf("Unrecognised track #%s", badTrack)}, resultRejected
		}
		if err := p.store.RecordCheckIn(nick, location); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return []string{fmt.Sprintf("OK, checked into %s - thanks for the update!", location)}, resultOK

	case "out":
		if len(args) > 0 {
			return []string{"The 'out' command does not accept any extra parameters."}, resultRejected
		}
		record, ok := p.store.LastCheckIn(nick)
		if !ok {
			return []string{"You weren't checked in anywhere yet!"}, resultRejected
		}
		if record.Out != nil {
			return []string{fmt.Sprintf("You already checked out of %s at %s!", record.Location, *record.Out)}, resultRejected
		}
		location, err := p.store.RecordCheckOut(nick)
		if err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return []string{fmt.Sprintf("OK, checked out of %s - thanks for the update!", location)}, resultOK

	case "seen":
		if len(args) != 1 {
			return []string{"The 'seen' command needs a single nick argument."}, resultRejected
		}
		seenNick := args[0]
		record, ok := p.store.LastCheckIn(seenNick)
		switch {
		case !ok:
			return []string{fmt.Sprintf("%s never checked in anywhere", seenNick)}, resultOK
		case record.Out == nil:
			return []string{fmt.Sprintf("%s was last seen in %s at %s", record.Nick, record.Location, record.In)}, resultOK
		default:
			return []string{fmt.Sprintf("%s checked out of %s at %s", record.Nick, record.Location, *record.Out)}, resultOK
		}

	case "subscribe":
		newRegex := strings.Join(args, " ")
		existing := p.store.Subscription(nick)
		if newRegex == "" {
			if existing == nil {
				return []string{"You don't have a subscription regex set yet"}, resultOK
			}
			return []string{"Your current subscription regex is: " + *existing}, resultOK
		}
		if _, err := regexp.Compile(newRegex); err != nil {
			return []string{fmt.Sprintf("Invalid regex: %v", err)}, resultRejected
		}
		if err := p.store.SetSubscription(nick, &newRegex); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		reply := "Subscription set to " + newRegex
		if existing != nil {
			reply += fmt.Sprintf(" (was %s)", *existing)
		}
		return []string{reply}, resultOK

	case "unsubscribe":
		existing := p.store.Subscription(nick)
		if existing == nil {
			return []string{"You don't have a subscription regex set yet"}, resultRejected
		}
		if err := p.store.SetSubscription(nick, nil); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return []string{fmt.Sprintf("Cancelled subscription %s", *existing)}, resultOK

	default:
		return []string{"Unknown user command. Should be: in, out, seen, or subscribe"}, resultRejected
	}
}
