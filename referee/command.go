package referee

import (
	"strings"
	"unicode"
)

// CommandType identifies one of the referee's chat commands.
type CommandType int

const (
	CmdNone CommandType = iota
	CmdHardNew
	CmdNew
	CmdHelp
	CmdStatus
	CmdJoin
	CmdLeave
)

func (c CommandType) String() string {
	switch c {
	case CmdHardNew:
		return "hard-new"
	case CmdNew:
		return "new"
	case CmdHelp:
		return "help"
	case CmdStatus:
		return "status"
	case CmdJoin:
		return "join"
	case CmdLeave:
		return "leave"
	default:
		return "none"
	}
}

// Command is a parsed chat command. Target is the user id named by a
// trailing mention, empty when the caller acts on themselves.
type Command struct {
	Type   CommandType
	Target string
}

// 命令前缀：两个短横线，或被客户端自动替换成的破折号
var prefixes = []string{"--", "—"}

// ParseCommand splits text on whitespace and matches it against the command grammar:
//
//	--hard-new | --new | --help        the whole message
//	... --status                       last token
//	... --y [<@user>]                  last token, or the one before a mention
//	... --n [<@user>]
//
// Matching is case-insensitive and tried in that order.
func ParseCommand(text string) (Command, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Command{}, false
	}

	if len(tokens) == 1 {
		switch {
		case isKeyword(tokens[0], "hard-new"):
			return Command{Type: CmdHardNew}, true
		case isKeyword(tokens[0], "new"):
			return Command{Type: CmdNew}, true
		case isKeyword(tokens[0], "help"):
			return Command{Type: CmdHelp}, true
		}
	}

	last := tokens[len(tokens)-1]
	if endsWithKeyword(last, "status") {
		return Command{Type: CmdStatus}, true
	}

	for _, c := range []struct {
		typ     CommandType
		keyword string
	}{{CmdJoin, "y"}, {CmdLeave, "n"}} {
		if endsWithKeyword(last, c.keyword) {
			return Command{Type: c.typ}, true
		}
		// 末尾是 @提及 时，看倒数第二个 token
		if len(tokens) >= 2 && strings.HasPrefix(last, "<@") && endsWithKeyword(tokens[len(tokens)-2], c.keyword) {
			target, _ := parseMention(last)
			return Command{Type: c.typ, Target: target}, true
		}
	}

	return Command{}, false
}

// tokenize splits on whitespace only. Quotes and backslashes stay part of
// the token, so a quoted "--n" in conversation is not a command.
func tokenize(text string) []string {
	return strings.Fields(text)
}

func isKeyword(token, keyword string) bool {
	token = strings.ToLower(token)
	for _, p := range prefixes {
		if token == p+keyword {
			return true
		}
	}
	return false
}

func endsWithKeyword(token, keyword string) bool {
	token = strings.ToLower(token)
	for _, p := range prefixes {
		if strings.HasSuffix(token, p+keyword) {
			return true
		}
	}
	return false
}

// parseMention extracts the user id from "<@U123>" or "<@U123|name>".
func parseMention(token string) (string, bool) {
	if !strings.HasPrefix(token, "<@") || !strings.HasSuffix(token, ">") {
		return "", false
	}
	body := token[2 : len(token)-1]
	if i := strings.IndexByte(body, '|'); i >= 0 {
		body = body[:i]
	}
	if body == "" {
		return "", false
	}
	for _, r := range body {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", false
		}
	}
	return body, true
}
