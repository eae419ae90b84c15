package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/replicate/go/logging"
	"github.com/replicate/go/must"
	_ "go.uber.org/automaxprocs"

	"github.com/dcr-tools/dcr/internal/config"
	"github.com/dcr-tools/dcr/internal/service"
	"github.com/dcr-tools/dcr/internal/util"
)

var logger = logging.New("dcr")

func main() {
	log := logger.Sugar()

	var cfg config.Config
	flags := must.Get(config.NewFlagSet("dcr", &cfg))

	cmd := &ff.Command{
		Name:  "dcr",
		Usage: "dcr [FLAGS]",
		Flags: flags,
		Exec: func(ctx context.Context, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			log.Infow("configuration",
				"addr", cfg.Addr(),
				"base-path", cfg.BasePath,
				"stamp", cfg.Stamp,
				"max-body-size", cfg.MaxBodySize,
				"static-dir", cfg.StaticDir,
				"template-dir", cfg.TemplateDir,
			)

			svc := service.New(cfg, logger)
			if err := svc.Initialize(ctx); err != nil {
				return err
			}

			health := "OK"
			if !cfg.Healthcheck {
				health = "KO"
			}
			endpoint := "active"
			if !cfg.Logger {
				endpoint = "inactive"
			}
			log.Infof("Version %s%s on http://%s%s. Healthcheck is %s and logger endpoint is %s",
				util.Version(), cfg.Stamp, svc.Addr(), cfg.BasePath, health, endpoint)

			return svc.Run(ctx)
		},
	}

	err := cmd.Parse(os.Args[1:], config.Options()...)
	switch {
	case errors.Is(err, ff.ErrHelp):
		must.Get(fmt.Fprintln(os.Stderr, ffhelp.Command(cmd)))
		os.Exit(0)
	case err != nil:
		log.Error(err)
		must.Get(fmt.Fprintln(os.Stderr, ffhelp.Command(cmd)))
		os.Exit(1)
	}

	if err := cmd.Run(context.Background()); err != nil {
		log.Error(err)
		os.Exit(1)
	}
	log.Info("shutdown completed normally")
}
