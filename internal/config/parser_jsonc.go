package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Server    *jsoncServer    `json:"server"`
	LLM       *jsoncLLM       `json:"llm"`
	Client    *jsoncClient    `json:"client"`
	Capture   *jsoncCapture   `json:"capture"`
	Speech    *jsoncSpeech    `json:"speech"`
	Sheets    *jsoncSheets    `json:"sheets"`
	Audio     *jsoncAudio     `json:"audio"`
	Indicator *jsoncIndicator `json:"indicator"`
}

type jsoncServer struct {
	Addr *string `json:"addr"`
}

type jsoncLLM struct {
	Provider     *string `json:"provider"`
	Model        *string `json:"model"`
	MaxTokens    *int    `json:"max_tokens"`
	SystemPrompt *string `json:"system_prompt"`
	BaseURL      *string `json:"base_url"`
}

type jsoncClient struct {
	ProxyURL  *string `json:"proxy_url"`
	TimeoutMS *int    `json:"timeout_ms"`
}

type jsoncCapture struct {
	SilenceTimeoutMS *int  `json:"silence_timeout_ms"`
	RestartBackoffMS *int  `json:"restart_backoff_ms"`
	AutoResume       *bool `json:"auto_resume"`
}

type jsoncSpeech struct {
	Engine  *string `json:"engine"`
	Command *string `json:"command"`
	Model   *string `json:"model"`
	Voice   *string `json:"voice"`
}

type jsoncSheets struct {
	Range *string `json:"range"`
}

type jsoncAudio struct {
	Output   *string `json:"output"`
	Fallback *string `json:"fallback"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	SoundEnable    *bool   `json:"sound_enable"`
	TextListening  *string `json:"text_listening"`
	TextSubmitting *string `json:"text_submitting"`
	TextSpeaking   *string `json:"text_speaking"`
	TextError      *string `json:"text_error"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Server != nil && payload.Server.Addr != nil {
		cfg.Server.Addr = strings.TrimSpace(*payload.Server.Addr)
	}

	if payload.LLM != nil {
		setString(&cfg.LLM.Provider, payload.LLM.Provider)
		setString(&cfg.LLM.Model, payload.LLM.Model)
		setString(&cfg.LLM.BaseURL, payload.LLM.BaseURL)
		if payload.LLM.MaxTokens != nil {
			cfg.LLM.MaxTokens = *payload.LLM.MaxTokens
		}
		if payload.LLM.SystemPrompt != nil {
			cfg.LLM.SystemPrompt = *payload.LLM.SystemPrompt
		}
		cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	}

	if payload.Client != nil {
		setString(&cfg.Client.ProxyURL, payload.Client.ProxyURL)
		if payload.Client.TimeoutMS != nil {
			cfg.Client.TimeoutMS = *payload.Client.TimeoutMS
		}
	}

	if payload.Capture != nil {
		if payload.Capture.SilenceTimeoutMS != nil {
			cfg.Capture.SilenceTimeoutMS = *payload.Capture.SilenceTimeoutMS
		}
		if payload.Capture.RestartBackoffMS != nil {
			cfg.Capture.RestartBackoffMS = *payload.Capture.RestartBackoffMS
		}
		if payload.Capture.AutoResume != nil {
			cfg.Capture.AutoResume = *payload.Capture.AutoResume
		}
	}

	if payload.Speech != nil {
		setString(&cfg.Speech.Engine, payload.Speech.Engine)
		cfg.Speech.Engine = strings.ToLower(cfg.Speech.Engine)
		setString(&cfg.Speech.Model, payload.Speech.Model)
		setString(&cfg.Speech.Voice, payload.Speech.Voice)
		if payload.Speech.Command != nil {
			raw := *payload.Speech.Command
			argv, err := splitCommand(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid speech.command: %w", err)
			}
			cfg.Speech.Command = CommandConfig{Raw: raw, Argv: argv}
		}
	}

	if payload.Sheets != nil {
		setString(&cfg.Sheets.Range, payload.Sheets.Range)
	}

	if payload.Audio != nil {
		setString(&cfg.Audio.Output, payload.Audio.Output)
		setString(&cfg.Audio.Fallback, payload.Audio.Fallback)
	}

	if payload.Indicator != nil {
		if payload.Indicator.Enable != nil {
			cfg.Indicator.Enable = *payload.Indicator.Enable
		}
		if payload.Indicator.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *payload.Indicator.SoundEnable
		}
		setString(&cfg.Indicator.TextListening, payload.Indicator.TextListening)
		setString(&cfg.Indicator.TextSubmitting, payload.Indicator.TextSubmitting)
		setString(&cfg.Indicator.TextSpeaking, payload.Indicator.TextSpeaking)
		setString(&cfg.Indicator.TextError, payload.Indicator.TextError)
	}

	return warnings, nil
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
