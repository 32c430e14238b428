package bot

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

// notify pushes a direct message to every subscriber whose regex
// matches the event text "#track adverb sentence", case-insensitively.
// Delivery to an offline nick is silently dropped by the transport,
// which is exactly what we want.
func (p *Processor) notify(sender Sender, track, adverb, sentence string) {
	location := p.store.Location(track)
	trackTag := "#" + track
	trackLoc := trackTag
	if location != "" {
		trackLoc = fmt.Sprintf("%s (%s)", trackTag, location)
	}

	eventText := trackTag + " " + adverb + " " + sentence
	for nick, pattern := range p.store.Subscriptions() {
		if pattern == nil {
			// Explicitly unsubscribed.
			continue
		}
		re, err := regexp.Compile("(?i)(?:" + *pattern + ")")
		if err != nil {
			// Validated at subscribe time; a stored pattern that no
			// longer compiles is skipped rather than fatal.
			p.logger.Warn("stored subscription regex does not compile",
				zap.String("nick", nick), zap.Error(err))
			continue
		}
		if re.MatchString(eventText) {
			sender.Send(nick, fmt.Sprintf("%s in %s: %s", adverb, trackLoc, sentence))
		}
	}
}
