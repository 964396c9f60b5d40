// Package doctor runs runtime readiness diagnostics for config, credentials,
// speech output, audio, the chat proxy, and the conversation log.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/voxchat/internal/audio"
	"github.com/rbright/voxchat/internal/config"
	"github.com/rbright/voxchat/internal/sheets"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// selectDevice is swapped in tests that run without a sound server.
var selectDevice = audio.SelectDevice

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkAPIKey(cfg))
	checks = append(checks, checkSpeech(cfg))
	if cfg.Speech.Engine != config.EngineNone || cfg.Indicator.SoundEnable {
		checks = append(checks, checkAudioSelection(ctx, cfg))
	}
	checks = append(checks, checkProxyReady(ctx, cfg))
	checks = append(checks, checkSheets(ctx, cfg))

	return Report{Checks: checks}
}

// checkAPIKey confirms the completion provider has a credential.
func checkAPIKey(cfg config.Config) Check {
	name := "llm." + cfg.LLM.Provider
	if cfg.LLM.Provider == "echo" {
		return Check{Name: name, Pass: true, Message: "echo provider needs no API key"}
	}
	if cfg.APIKey() == "" {
		env := "ANTHROPIC_API_KEY (or CLAUDE_API_KEY)"
		if cfg.LLM.Provider == "openai" {
			env = "OPENAI_API_KEY"
		}
		return Check{Name: name, Pass: false, Message: env + " is not set"}
	}
	return Check{Name: name, Pass: true, Message: "API key present"}
}

// checkSpeech validates the configured reply synthesizer.
func checkSpeech(cfg config.Config) Check {
	switch cfg.Speech.Engine {
	case config.EngineNone:
		return Check{Name: "speech", Pass: true, Message: "disabled; replies are shown as text only"}
	case config.EngineOpenAI:
		if cfg.Secrets.OpenAIAPIKey == "" {
			return Check{Name: "speech", Pass: false, Message: "speech.engine=openai requires OPENAI_API_KEY"}
		}
		return Check{Name: "speech", Pass: true, Message: fmt.Sprintf("openai %s voice %q", cfg.Speech.Model, cfg.Speech.Voice)}
	default:
		return checkCommand(cfg.Speech.Command.Argv, "speech.command")
	}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live sink selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := selectDevice(ctx, cfg.Audio.Output, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkProxyReady probes the chat proxy health endpoint used by `listen`.
func checkProxyReady(ctx context.Context, cfg config.Config) Check {
	url := strings.TrimRight(strings.TrimSpace(cfg.Client.ProxyURL), "/") + "/healthz"

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: "proxy.ready", Pass: false, Message: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: "proxy.ready", Pass: false, Message: fmt.Sprintf("request failed: %v (is `voxchat serve` running?)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "proxy.ready", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}

	var health struct {
		Provider string `json:"provider"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(body, &health); err != nil || health.Provider == "" {
		return Check{Name: "proxy.ready", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: "proxy.ready", Pass: true, Message: fmt.Sprintf("ready at %s (provider %s)", url, health.Provider)}
}

// checkSheets validates the optional conversation log credentials offline.
func checkSheets(ctx context.Context, cfg config.Config) Check {
	if cfg.Secrets.SheetsID == "" {
		return Check{Name: "sheets", Pass: true, Message: "GOOGLE_SHEETS_ID not set; conversation log disabled"}
	}
	if _, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.Secrets.SheetsID,
		CredentialsJSON: cfg.Secrets.SheetsCredentials,
		Range:           cfg.Sheets.Range,
	}); err != nil {
		return Check{Name: "sheets", Pass: false, Message: err.Error()}
	}
	return Check{Name: "sheets", Pass: true, Message: fmt.Sprintf("logging to %s range %s", cfg.Secrets.SheetsID, cfg.Sheets.Range)}
}
