package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/rbright/voxchat/internal/bridge"
	"github.com/rbright/voxchat/internal/config"
	"github.com/rbright/voxchat/internal/llm"
	"github.com/rbright/voxchat/internal/proxy"
	"github.com/rbright/voxchat/internal/sheets"
)

// commandServe runs the chat proxy and browser voice UI until ctx ends.
func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	completer, err := llm.New(llm.Config{
		Provider:     cfg.LLM.Provider,
		APIKey:       cfg.APIKey(),
		BaseURL:      cfg.LLM.BaseURL,
		Model:        cfg.LLM.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
		SystemPrompt: cfg.LLM.SystemPrompt,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	service := proxy.NewService(completer, r.openHistory(ctx, cfg, logger), logger)
	sessions := bridge.New(service, bridge.Config{
		SilenceTimeout: millis(cfg.Capture.SilenceTimeoutMS),
		RestartBackoff: millis(cfg.Capture.RestartBackoffMS),
		AutoResume:     cfg.Capture.AutoResume,
	}, logger)
	server := proxy.NewServer(service, sessions.Handle, logger)

	listener := r.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", cfg.Server.Addr)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: listen %s: %v\n", cfg.Server.Addr, err)
			return 1
		}
	}

	fmt.Fprintf(r.Stdout, "voxchat serving on http://%s (provider %s)\n", listener.Addr(), service.Provider())

	if err := server.Serve(ctx, listener); err != nil {
		fmt.Fprintf(r.Stderr, "error: serve: %v\n", err)
		return 1
	}
	logger.Info("proxy stopped", "browser_sessions", sessions.Active())
	return 0
}

// openHistory returns the conversation log, or nil when none is configured.
func (r Runner) openHistory(ctx context.Context, cfg config.Config, logger *slog.Logger) proxy.History {
	log, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.Secrets.SheetsID,
		CredentialsJSON: cfg.Secrets.SheetsCredentials,
		Range:           cfg.Sheets.Range,
	})
	if err != nil {
		if errors.Is(err, sheets.ErrNotConfigured) && cfg.Secrets.SheetsID == "" {
			logger.Info("conversation log disabled")
			return nil
		}
		fmt.Fprintf(r.Stderr, "warning: conversation log disabled: %v\n", err)
		logger.Warn("conversation log disabled", "error", err.Error())
		return nil
	}
	return log
}
