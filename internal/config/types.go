// Package config resolves, parses, validates, and defaults voxchat configuration.
package config

// Config is the fully materialized runtime configuration used by voxchat.
type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Client    ClientConfig
	Capture   CaptureConfig
	Speech    SpeechConfig
	Sheets    SheetsConfig
	Audio     AudioConfig
	Indicator IndicatorConfig
	Secrets   Secrets
}

// ServerConfig controls the completion proxy listener.
type ServerConfig struct {
	Addr string
}

// LLMConfig selects and tunes the completion provider behind POST /api/chat.
type LLMConfig struct {
	Provider     string
	Model        string
	MaxTokens    int
	SystemPrompt string
	BaseURL      string
}

// ClientConfig controls how a terminal session reaches the proxy.
type ClientConfig struct {
	ProxyURL  string
	TimeoutMS int
}

// CaptureConfig controls utterance segmentation.
type CaptureConfig struct {
	SilenceTimeoutMS int
	RestartBackoffMS int
	AutoResume       bool
}

// SpeechConfig selects the reply synthesizer for terminal sessions.
type SpeechConfig struct {
	Engine  string
	Command CommandConfig
	Model   string
	Voice   string
}

// SheetsConfig controls the optional conversation log.
type SheetsConfig struct {
	Range string
}

// AudioConfig controls preferred and fallback output-sink selection.
type AudioConfig struct {
	Output   string
	Fallback string
}

// IndicatorConfig controls the status line and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	SoundEnable    bool
	TextListening  string
	TextSubmitting string
	TextSpeaking   string
	TextError      string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Secrets are read from the environment, never from the config file.
type Secrets struct {
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	SheetsID          string
	SheetsCredentials string
	ProxyURL          string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// Speech engines.
const (
	EngineCommand = "command"
	EngineOpenAI  = "openai"
	EngineNone    = "none"
)
