package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/rbright/voxchat/internal/audio"
	"github.com/rbright/voxchat/internal/cli"
	"github.com/rbright/voxchat/internal/config"
	"github.com/rbright/voxchat/internal/doctor"
	"github.com/rbright/voxchat/internal/ipc"
	"github.com/rbright/voxchat/internal/logging"
	"github.com/rbright/voxchat/internal/session"
	"github.com/rbright/voxchat/internal/sheets"
	"github.com/rbright/voxchat/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Stdin feeds `listen` one utterance per line; nil means os.Stdin.
	Stdin  io.Reader
	Logger *slog.Logger
	// Listener overrides server.addr for `serve`.
	Listener net.Listener
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("voxchat"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("voxchat"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logOpts := logging.Options{Debug: parsed.Debug}
	if parsed.Command == cli.CommandServe {
		logOpts.Console = r.Stderr
	}
	logRuntime, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	resolvedPath, err := config.ResolvePath(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	envFiles, err := config.LoadEnv(config.EnvPaths(resolvedPath)...)
	if err != nil {
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		logger.Warn("env file load failed", "error", err.Error())
	}

	cfgLoaded, err := config.Load(resolvedPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		if cfgLoaded.Exists || parsed.Command == cli.CommandDoctor {
			fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		}
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"env_files", envFiles,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandQuit:
		return r.forwardOrFail(ctx, ipc.CommandQuit)
	case cli.CommandHistory:
		return r.commandHistory(ctx, cfgLoaded.Config)
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandListen:
		return r.commandListen(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}

	return 0
}

func (r Runner) commandHistory(ctx context.Context, cfg config.Config) int {
	log, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.Secrets.SheetsID,
		CredentialsJSON: cfg.Secrets.SheetsCredentials,
		Range:           cfg.Sheets.Range,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	rows, err := log.Read(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(rows) == 0 {
		fmt.Fprintln(r.Stdout, "no conversation history")
		return 0
	}
	for _, row := range rows {
		fmt.Fprintln(r.Stdout, strings.Join(row, "\t"))
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		if resp.Turns > 0 {
			fmt.Fprintf(r.Stdout, "%s (%d turns)\n", resp.State, resp.Turns)
			return 0
		}
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active voxchat session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"quit", result.Quit,
		"cycles", result.Cycles,
		"turns", len(result.Turns),
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

// tryForward reports handled=false when no session owns the socket.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Forward(ctx, socketPath, command, 220*time.Millisecond)
	if errors.Is(err, ipc.ErrNoSession) {
		return ipc.Response{}, false, nil
	}
	return resp, true, err
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
