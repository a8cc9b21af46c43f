package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/desertwitch/arcvfs/internal/configuration"
	"github.com/desertwitch/arcvfs/vfs"
	"github.com/lmittmann/tint"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

const (
	stackTraceBufMax = 1 << 24
)

//nolint:gochecknoglobals
var (
	ExitCode = 0
	Version  string
)

type flags struct {
	root       string
	configs    []string
	debug      bool
	logFile    string
	cpuprofile string
	memprofile string
}

func parseFlags(args []string) (*flags, []string, error) {
	f := &flags{}

	flagSet := pflag.NewFlagSet("arcvfs", pflag.ContinueOnError)
	flagSet.StringVarP(&f.root, "root", "r", ".", "directory the virtual file system is rooted in")
	flagSet.StringSliceVarP(&f.configs, "config", "c", nil, "configuration file (.env or .yaml), may be repeated")
	flagSet.BoolVarP(&f.debug, "debug", "d", false, "enable debug logging")
	flagSet.StringVar(&f.logFile, "log-file", "", "additionally write JSON log records to this file")
	flagSet.StringVar(&f.cpuprofile, "cpuprofile", "", "write cpu profile to file")
	flagSet.StringVar(&f.memprofile, "memprofile", "", "write memory profile to this file")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: arcvfs [flags] <command> [args]\n\nCommands:\n%s\nFlags:\n%s", usage, flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("(main-flags) %w", err)
	}

	return f, flagSet.Args(), nil
}

func setupLogging(logs *SlogManager, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logs.AddHandler("terminal", tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	slog.SetDefault(slog.New(logs))
}

func setupSignalHandlers(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigChan
		cancel()
	}()

	sigChan2 := make(chan os.Signal, 1)
	signal.Notify(sigChan2, syscall.SIGUSR1)
	go func() {
		for range sigChan2 {
			buf := make([]byte, stackTraceBufMax)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()
}

func main() {
	defer func() {
		os.Exit(ExitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, args, err := parseFlags(os.Args[1:])
	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			ExitCode = 2
		}

		return
	}

	logs := NewSlogManager()
	setupLogging(logs, f.debug)
	setupSignalHandlers(cancel)

	if f.logFile != "" {
		file, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			slog.Error("Failed to open log file.", "path", f.logFile, "err", err)
			ExitCode = 1

			return
		}
		defer file.Close()

		logs.AddHandler("file", slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	cpuProfiler := NewCPUProfiler(ctx, &f.cpuprofile)
	defer cpuProfiler.Stop()

	allocProfiler := NewAllocProfiler(ctx, &f.memprofile)
	defer allocProfiler.Stop()

	configHandler := configuration.NewHandler(&configuration.GodotenvProvider{}, &configuration.YAMLProvider{})

	config, err := configHandler.Load(f.configs...)
	if err != nil {
		slog.Error("Failed to load configuration.", "err", err)
		ExitCode = 1

		return
	}

	memObserver := newMemoryObserver(ctx, config.SpoolThreshold)
	defer memObserver.Stop()

	fsys, err := vfs.New(afero.NewOsFs(), f.root, config)
	if err != nil {
		slog.Error("Failed to establish file system.", "root", f.root, "err", err)
		ExitCode = 1

		return
	}

	app := NewApp(fsys, afero.NewOsFs(), os.Stdout, config)

	if err := app.Launch(ctx, args); err != nil {
		if errors.Is(err, ErrUsage) {
			fmt.Fprintf(os.Stderr, "Usage: arcvfs [flags] <command> [args]\n\nCommands:\n%s", usage)
		}
		slog.Error("Command failed.", "err", err)
		ExitCode = 1
	}
}
