package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandSynthesizer speaks text by running a local command with the text as its last argument.
type CommandSynthesizer struct {
	argv []string
}

// NewCommandSynthesizer builds a synthesizer for argv, e.g. ["espeak", "-s", "170"].
func NewCommandSynthesizer(argv []string) *CommandSynthesizer {
	return &CommandSynthesizer{argv: append([]string(nil), argv...)}
}

func (c *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	if len(c.argv) == 0 {
		return ErrUnsupported
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if _, err := exec.LookPath(c.argv[0]); err != nil {
		return fmt.Errorf("%w: %s not found", ErrUnsupported, c.argv[0])
	}

	args := append(append([]string(nil), c.argv[1:]...), text)
	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("run %s: %w (%s)", c.argv[0], err, strings.TrimSpace(string(output)))
	}
	return nil
}
