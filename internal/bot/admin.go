package bot

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ptgbot/internal/state"
)

// fetchTimeout bounds the ~fetchdb download. A hung fetch would block
// all subsequent command processing.
const fetchTimeout = 30 * time.Second

// processAdmin handles the ~commands. The op gate lives in the
// processor; by the time we get here the sender is a channel operator.
func (p *Processor) processAdmin(cmd string, args []string) ([]string, string) {
	switch cmd {
	case "emptydb":
		if err := p.store.Empty(); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "fetchdb":
		if len(args) < 1 {
			return []string{"Missing URL to fetch (~fetchdb URL)"}, resultRejected
		}
		url := args[0]
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		if err := p.store.ImportFromURL(ctx, url); err != nil {
			return []string{fmt.Sprintf("Error loading DB: %v", err)}, resultError
		}
		return []string{fmt.Sprintf("Loaded DB from %s", url)}, resultOK

	case "newday":
		if err := p.store.NewDay(); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "motd":
		return p.processMOTD(args)

	case "requirevoice":
		if err := p.store.RequireVoice(); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "alloweveryone":
		if err := p.store.AllowEveryone(); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "list":
		tracks := p.store.ListTracks()
		if len(tracks) == 0 {
			return []string{"There are no active tracks defined yet"}, resultOK
		}
		return []string{"Available tracks: " + strings.Join(tracks, " ")}, resultOK

	case "add":
		if len(args) < 1 {
			return []string{"This command takes one or more arguments"}, resultRejected
		}
		if err := p.store.AddTracks(args); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "del":
		if len(args) < 1 {
			return []string{"This command takes one or more arguments"}, resultRejected
		}
		if err := p.store.DelTracks(args); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "clean":
		if len(args) < 1 {
			return []string{"This command takes one or more arguments"}, resultRejected
		}
		if err := p.store.CleanTracks(args); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	default:
		return []string{fmt.Sprintf("Unknown command '%s'", cmd)}, resultRejected
	}
}

// processMOTD handles the ~motd subcommands against the banner queue.
// Entry numbers are 1-based as shown on the dashboard.
func (p *Processor) processMOTD(args []string) ([]string, string) {
	if len(args) < 1 {
		return []string{"Missing subcommand (~motd add|del|clean|reorder ...)"}, resultRejected
	}

	switch args[0] {
	case "add":
		if len(args) < 3 {
			return []string{"Missing parameters (~motd add LEVEL MSG)"}, resultRejected
		}
		level := args[1]
		if !slices.Contains(state.MOTDLevels, level) {
			return []string{fmt.Sprintf(
				"Incorrect message level '%s' (should be info, success, warning or danger)", level)}, resultRejected
		}
		if err := p.store.MOTDAdd(level, strings.Join(args[2:], " ")); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "del":
		if len(args) < 2 {
			return []string{"Missing message number (~motd del NUM)"}, resultRejected
		}
		num, ok := p.motdIndex(args[1])
		if !ok {
			return []string{fmt.Sprintf("Incorrect message number %s", args[1])}, resultRejected
		}
		if err := p.store.MOTDDel(num); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "clean", "clear":
		if len(args) > 1 {
			return []string{"'~motd clean' does not take parameters"}, resultRejected
		}
		if err := p.store.MOTDClean(); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	case "reorder":
		if len(args) < 2 {
			return []string{"Missing params (~motd reorder X Y...)"}, resultRejected
		}
		order := make([]int, 0, len(args)-1)
		for _, arg := range args[1:] {
			num, ok := p.motdIndex(arg)
			if !ok {
				return []string{fmt.Sprintf("Incorrect message number %s", arg)}, resultRejected
			}
			order = append(order, num)
		}
		if err := p.store.MOTDReorder(order); err != nil {
			return []string{p.saveError(err)}, resultError
		}
		return nil, resultOK

	default:
		return []string{fmt.Sprintf("Unknown motd subcommand %s", args[0])}, resultRejected
	}
}

// motdIndex parses a 1-based queue index and checks it exists.
func (p *Processor) motdIndex(arg string) (int, bool) {
	num, err := strconv.Atoi(arg)
	if err != nil || !p.store.MOTDHas(num) {
		return 0, false
	}
	return num, true
}
