package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return nil, fmt.Errorf("server.addr must not be empty")
	}

	switch cfg.LLM.Provider {
	case "anthropic", "openai", "echo":
	default:
		return nil, fmt.Errorf("llm.provider must be one of: anthropic, openai, echo")
	}
	if cfg.LLM.MaxTokens <= 0 {
		return nil, fmt.Errorf("llm.max_tokens must be > 0")
	}
	if cfg.LLM.Provider == "echo" {
		warnings = append(warnings, Warning{Message: "llm.provider=echo replies with the prompt; no model is called"})
	}

	proxyURL, err := url.Parse(strings.TrimSpace(cfg.Client.ProxyURL))
	if err != nil || proxyURL.Host == "" || (proxyURL.Scheme != "http" && proxyURL.Scheme != "https") {
		return nil, fmt.Errorf("client.proxy_url must be an absolute http(s) URL")
	}
	if cfg.Client.TimeoutMS <= 0 {
		return nil, fmt.Errorf("client.timeout_ms must be > 0")
	}

	if cfg.Capture.SilenceTimeoutMS <= 0 {
		return nil, fmt.Errorf("capture.silence_timeout_ms must be > 0")
	}
	if cfg.Capture.RestartBackoffMS < 0 {
		return nil, fmt.Errorf("capture.restart_backoff_ms must be >= 0")
	}
	if cfg.Capture.SilenceTimeoutMS < 500 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("capture.silence_timeout_ms=%d is short; utterances may be cut mid-sentence", cfg.Capture.SilenceTimeoutMS)})
	}

	switch cfg.Speech.Engine {
	case EngineCommand:
		if len(cfg.Speech.Command.Argv) == 0 {
			return nil, fmt.Errorf("speech.command must not be empty when speech.engine=command")
		}
	case EngineOpenAI:
		if strings.TrimSpace(cfg.Speech.Model) == "" || strings.TrimSpace(cfg.Speech.Voice) == "" {
			return nil, fmt.Errorf("speech.model and speech.voice must not be empty when speech.engine=openai")
		}
	case EngineNone:
	default:
		return nil, fmt.Errorf("speech.engine must be one of: command, openai, none")
	}

	if !strings.Contains(cfg.Sheets.Range, "!") {
		return nil, fmt.Errorf("sheets.range must be in A1 notation with a sheet name, e.g. Sheet1!A:C")
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.TextListening) == "" {
		warnings = append(warnings, Warning{Message: "indicator.text_listening is empty; the status line will be blank while listening"})
	}

	return warnings, nil
}
