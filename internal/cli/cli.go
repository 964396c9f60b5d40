// Package cli parses the voxchat command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandServe   Command = "serve"
	CommandListen  Command = "listen"
	CommandStatus  Command = "status"
	CommandStop    Command = "stop"
	CommandQuit    Command = "quit"
	CommandHistory Command = "history"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:   {},
	CommandListen:  {},
	CommandStatus:  {},
	CommandStop:    {},
	CommandQuit:    {},
	CommandHistory: {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Debug      bool
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--debug":
			parsed.Debug = true
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if value, ok := strings.CutPrefix(arg, "--config="); ok {
				if value == "" {
					return Parsed{}, errors.New("--config requires a path")
				}
				parsed.ConfigPath = value
				continue
			}
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--debug] <command>

Commands:
  serve     Run the chat proxy and browser voice UI
  listen    Run a voice chat session in this terminal
  status    Print the state of the running listen session
  stop      End the current utterance now instead of waiting for silence
  quit      End the running listen session
  history   Print the conversation log from Google Sheets
  devices   List available output devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/voxchat/config.jsonc)
  --debug         Log at debug level
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
