package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/buildkite/shellwords"
)

// identity is who the client says it is in its hello frame.
type identity struct {
	userID   string
	name     string
	realName string
	channel  string
}

// localCommand is a line the client handles itself instead of sending.
type localCommand struct {
	quit  bool
	hello *identity // re-sent hello, nil when unchanged
}

var errNotLocal = errors.New("not a local command")

const localHelp = `local commands:
  /as ID [NAME] ["REAL NAME"]   speak as another user
  /join CHANNEL                 move to another channel
  /quit                         disconnect`

// parseLocal interprets "/..." lines. Arguments are split like a shell so
// real names with spaces can be quoted. Anything else returns errNotLocal.
func parseLocal(line string, cur identity) (localCommand, error) {
	if !strings.HasPrefix(line, "/") {
		return localCommand{}, errNotLocal
	}
	args, err := shellwords.SplitPosix(line[1:])
	if err != nil {
		return localCommand{}, fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return localCommand{}, errors.New(localHelp)
	}

	switch args[0] {
	case "quit":
		return localCommand{quit: true}, nil
	case "as":
		if len(args) < 2 || len(args) > 4 {
			return localCommand{}, errors.New("usage: /as ID [NAME] [\"REAL NAME\"]")
		}
		next := identity{userID: args[1], name: args[1], channel: cur.channel}
		if len(args) > 2 {
			next.name = args[2]
		}
		if len(args) > 3 {
			next.realName = args[3]
		}
		return localCommand{hello: &next}, nil
	case "join":
		if len(args) != 2 {
			return localCommand{}, errors.New("usage: /join CHANNEL")
		}
		next := cur
		next.channel = args[1]
		return localCommand{hello: &next}, nil
	default:
		return localCommand{}, errors.New(localHelp)
	}
}
