package bot

import (
	"fmt"
	"strings"
)

const (
	COMMAND_ONLINE   = iota
	COMMAND_PLAYTIME = iota
	COMMAND_NAMES    = iota
	COMMAND_TOP      = iota
	COMMAND_HELP     = iota
)

const (
	PARSEID_OK                     = iota
	PARSEID_NO_BOT_PREFIX          = iota
	PARSEID_NO_COMMAND             = iota
	PARSEID_COMMAND_NOT_RECOGNISED = iota
	PARSEID_NO_INPUT               = iota
)

var errorMessages map[int]string = map[int]string{
	PARSEID_NO_COMMAND:             "No command provided",
	PARSEID_COMMAND_NOT_RECOGNISED: "Command `%s` not recognised",
	PARSEID_NO_INPUT:               "Command `%s` requires a player name",
}

type ParseResult struct {
	command      int
	parseid      int
	errorMessage string
	arguments    string
}

func Parse(prefix string, message string) ParseResult {

	noInput := func(command int, commandString string) ParseResult {
		parseid := PARSEID_NO_INPUT
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
	}

	// The message has to start with the bot prefix as a word of its own
	message = strings.TrimSpace(message)
	rest, found := strings.CutPrefix(message, prefix)
	if !found || (rest != "" && rest[0] != ' ') {
		return ParseResult{parseid: PARSEID_NO_BOT_PREFIX}
	}

	// Get the command if valid
	words := strings.Fields(rest)
	if len(words) == 0 {
		parseid := PARSEID_NO_COMMAND
		return ParseResult{parseid: parseid, errorMessage: errorMessages[parseid]}
	}
	commandString := strings.ToLower(words[0])
	name := strings.Join(words[1:], " ")

	// Match the command

	switch commandString {
	case "online":
		// crew online
		return ParseResult{command: COMMAND_ONLINE, parseid: PARSEID_OK}
	case "playtime":
		// crew playtime <name>
		if name == "" {
			return noInput(COMMAND_PLAYTIME, commandString)
		}
		return ParseResult{command: COMMAND_PLAYTIME, parseid: PARSEID_OK, arguments: name}
	case "names":
		// crew names <name>
		if name == "" {
			return noInput(COMMAND_NAMES, commandString)
		}
		return ParseResult{command: COMMAND_NAMES, parseid: PARSEID_OK, arguments: name}
	case "top":
		// crew top
		return ParseResult{command: COMMAND_TOP, parseid: PARSEID_OK}
	case "help":
		// crew help
		return ParseResult{command: COMMAND_HELP, parseid: PARSEID_OK}
	default:
		parseid := PARSEID_COMMAND_NOT_RECOGNISED
		return ParseResult{parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
	}
}
