package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	speak := "espeak-ng"

	return Config{
		Server: ServerConfig{Addr: "127.0.0.1:3000"},
		LLM: LLMConfig{
			Provider:  "anthropic",
			MaxTokens: 1024,
		},
		Client: ClientConfig{
			ProxyURL:  "http://127.0.0.1:3000",
			TimeoutMS: 60000,
		},
		Capture: CaptureConfig{
			SilenceTimeoutMS: 1500,
			RestartBackoffMS: 1000,
			AutoResume:       true,
		},
		Speech: SpeechConfig{
			Engine:  EngineCommand,
			Command: commandConfig(speak),
			Model:   "tts-1",
			Voice:   "alloy",
		},
		Sheets: SheetsConfig{Range: "Sheet1!A:C"},
		Audio: AudioConfig{
			Output:   "default",
			Fallback: "default",
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			SoundEnable:    true,
			TextListening:  "Listening...",
			TextSubmitting: "Thinking...",
			TextSpeaking:   "Speaking...",
			TextError:      "Error",
		},
	}
}
