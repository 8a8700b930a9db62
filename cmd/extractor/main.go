// Command extractor is the component entrypoint. It reads
// $KBC_DATADIR/config.json and runs the configured action.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"github.com/dvloznov/ads-extractor/internal/app"
	"github.com/dvloznov/ads-extractor/internal/config"
	"github.com/dvloznov/ads-extractor/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run())
}

// componentName tags every JSON log line of the component.
const componentName = "ads-extractor"

func run() int {
	log := newLogger(os.Getenv("LOG_FORMAT"), os.Stderr)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		log = log.Level(logger.ParseLevel(lvl))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	cfg, err := config.Load(config.DataDirFromEnv(), time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return app.ExitCode(err)
	}
	for _, w := range cfg.Warnings {
		log.Warn().Str("path", w.Path).Msg(w.Message)
	}

	gw := app.NewGateway(ctx, cfg)

	switch cfg.Action {
	case config.ActionListAccounts:
		err = app.ListAccounts(ctx, cfg, gw, os.Stdout)
	default:
		err = runExtraction(ctx, cfg, gw)
	}
	if err != nil {
		code := app.ExitCode(err)
		if code == app.ExitUserError {
			fmt.Fprintln(os.Stderr, err)
		} else {
			log.Error().Err(err).Msg("Extraction failed")
		}
		return code
	}
	return app.ExitOK
}

// newLogger returns the JSON logger collected by the platform runner, or the
// console logger when format is "console".
func newLogger(format string, w io.Writer) zerolog.Logger {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return logger.New()
	}
	return logger.NewJSON(w, componentName)
}

func runExtraction(ctx context.Context, cfg *config.Config, gw ads.Gateway) error {
	pub, err := app.NewPublisher(ctx, cfg.Publish)
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.Close()
	}

	_, err = app.Run(ctx, cfg, gw, pub)
	return err
}
