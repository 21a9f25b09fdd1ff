// Package main implements configtool, an offline helper for the announcer's
// settings document.
//
// Usage:
//
//	configtool validate settings.yaml
//	configtool import settings.yaml
//	configtool export [-o settings.yaml]
//
// import and export act on the store selected by STORE_BACKEND, so a YAML
// file can seed a Postgres-backed install and the active document can be
// pulled back out for editing. validate never touches the store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"homeweather/internal/config"
	"homeweather/internal/settings"
	"homeweather/internal/types"
)

// storeOpener is replaced in tests.
type storeOpener func(ctx context.Context) (settings.Store, func(), error)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(ctx, os.Args[1:], os.Stdout, logger, openConfiguredStore); err != nil {
		logger.Error("configtool failed", "error", err)
		os.Exit(1)
	}
}

func openConfiguredStore(ctx context.Context) (settings.Store, func(), error) {
	cfg, err := config.LoadStoreConfig()
	if err != nil {
		return nil, func() {}, err
	}
	return settings.Open(ctx, *cfg)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  configtool validate FILE\n")
	fmt.Fprintf(w, "  configtool import FILE\n")
	fmt.Fprintf(w, "  configtool export [-o FILE]\n")
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger, open storeOpener) error {
	if len(args) == 0 {
		usage(stdout)
		return errors.New("a command is required")
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "validate":
		path, err := fileArg(cmd, rest)
		if err != nil {
			return err
		}
		doc, err := readDocument(path)
		if err != nil {
			return err
		}
		if err := settings.NewService(nil, &slogAdapter{logger}).Validate(doc); err != nil {
			return describe(err)
		}
		fmt.Fprintf(stdout, "%s is valid (%d media players, %d webhooks)\n",
			path, len(doc.MediaPlayers), len(doc.TTS.EffectiveWebhooks()))
		return nil

	case "import":
		path, err := fileArg(cmd, rest)
		if err != nil {
			return err
		}
		doc, err := readDocument(path)
		if err != nil {
			return err
		}
		store, closeStore, err := open(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		saved, err := settings.NewService(store, &slogAdapter{logger}).Save(ctx, doc)
		if err != nil {
			return describe(err)
		}
		logger.Info("settings imported", "file", path, "weather_entity", saved.WeatherEntity)
		return nil

	case "export":
		fset := flag.NewFlagSet("export", flag.ContinueOnError)
		fset.SetOutput(stdout)
		out := fset.String("o", "", "write to FILE instead of stdout")
		if err := fset.Parse(rest); err != nil {
			return err
		}
		store, closeStore, err := open(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
		doc, err := settings.NewService(store, &slogAdapter{logger}).Load(ctx)
		if err != nil {
			return err
		}
		data, err := settings.EncodeYAML(&doc)
		if err != nil {
			return err
		}
		if *out == "" {
			_, err = stdout.Write(data)
			return err
		}
		if err := os.WriteFile(*out, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", *out, err)
		}
		logger.Info("settings exported", "file", *out)
		return nil

	default:
		usage(stdout)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func fileArg(cmd string, rest []string) (string, error) {
	if len(rest) != 1 {
		return "", fmt.Errorf("%s takes exactly one FILE argument", cmd)
	}
	return rest[0], nil
}

func readDocument(path string) (types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := settings.DecodeYAML(data)
	if err != nil {
		return types.Document{}, describe(err)
	}
	doc.Normalize()
	return *doc, nil
}

// describe folds AppError details into the message so problems reach the
// operator.
func describe(err error) error {
	var appErr *types.AppError
	if !errors.As(err, &appErr) || len(appErr.Details) == 0 {
		return err
	}
	return fmt.Errorf("%w %v", err, appErr.Details)
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}
