package config

import (
	"fmt"
	"strings"
	"unicode"
)

// splitCommand splits a shell-like command line into argv. Quotes group words
// and a backslash takes the next character literally. A line starting with #
// is a disabled command.
func splitCommand(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	var (
		argv   []string
		word   strings.Builder
		inWord bool
		quote  rune
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\':
			if i+1 == len(runes) {
				return nil, fmt.Errorf("unterminated escape sequence in command: %q", line)
			}
			i++
			word.WriteRune(runes[i])
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			word.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				argv = append(argv, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", line)
	}
	if inWord {
		argv = append(argv, word.String())
	}
	return argv, nil
}

// commandConfig builds a CommandConfig from a known-good literal.
func commandConfig(raw string) CommandConfig {
	argv, err := splitCommand(raw)
	if err != nil {
		panic(err)
	}
	return CommandConfig{Raw: raw, Argv: argv}
}
