//go:build windows

// Command epvpn-session is the thin composition root: it parses the config
// path flag, wires stdout/stderr as the engine's two log sinks, installs a
// SIGINT/SIGTERM-driven cancellation token, and runs one session to
// completion. It owns no window, tray, or service — those are the
// caller's concern per spec.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eptun-session/internal/core"
	"eptun-session/internal/engine"
	"eptun-session/internal/v2raya"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to the session configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("epvpn-session %s (commit=%s)\n", version, commit)
		return
	}

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] config: %v\n", err)
		os.Exit(1)
	}

	log := core.NewSinkLogger(toLogConfig(cfg.Logging), stdoutSink, stderrSink)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := engine.Deps{
		Log:         log,
		V2rayaStore: v2raya.NewSessionStateStore(),
		ConfigDir:   configDir(*configPath),
	}

	if err := engine.Run(ctx, cfg, deps); err != nil {
		log.Errorf("Core", "session ended: %v", err)
		os.Exit(1)
	}
	log.Infof("Core", "session ended cleanly")
}

func stdoutSink(s string) { fmt.Fprintln(os.Stdout, s) }
func stderrSink(s string) { fmt.Fprintln(os.Stderr, s) }

// toLogConfig maps the external windowLevel/fileLevel surface onto the
// engine's single-level SinkLogger: windowLevel governs what reaches the
// console sink the same way it would have governed the GUI window, since
// this composition root has no window of its own.
func toLogConfig(lc core.LoggingConfig) core.LogConfig {
	level := lc.WindowLevel
	if level == "" {
		level = lc.FileLevel
	}
	return core.LogConfig{Level: level}
}

func configDir(path string) string {
	dir := path
	for i := len(dir) - 1; i >= 0; i-- {
		if dir[i] == '/' || dir[i] == '\\' {
			return dir[:i]
		}
	}
	return "."
}
