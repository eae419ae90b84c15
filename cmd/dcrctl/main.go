package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/replicate/go/logging"
	"github.com/replicate/go/must"
	"gopkg.in/yaml.v3"

	"github.com/dcr-tools/dcr/internal/client"
)

var logger = logging.New("dcrctl")

// ErrUnhealthy makes `dcrctl health` exit non-zero, so it can serve as a
// container health probe.
var ErrUnhealthy = errors.New("server reports KO")

type RootConfig struct {
	URL     string        `ff:"long: url, default: http://localhost:28657/dcr, usage: base URL of the dcr server"`
	Timeout time.Duration `ff:"long: timeout, default: 10s, usage: request timeout"`
}

func healthCommand(root *ff.FlagSet, cfg *RootConfig) *ff.Command {
	return &ff.Command{
		Name:      "health",
		Usage:     "dcrctl health [FLAGS]",
		ShortHelp: "print OK or KO, exit 1 on KO",
		Flags:     ff.NewFlagSet("health").SetParent(root),
		Exec: func(ctx context.Context, args []string) error {
			healthy, err := newClient(cfg).Health(ctx)
			if err != nil {
				return err
			}
			if !healthy {
				fmt.Println("KO")
				return ErrUnhealthy
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func toggleCommand(root *ff.FlagSet, cfg *RootConfig) *ff.Command {
	return &ff.Command{
		Name:      "toggle",
		Usage:     "dcrctl toggle [FLAGS]",
		ShortHelp: "flip the server's health state",
		Flags:     ff.NewFlagSet("toggle").SetParent(root),
		Exec: func(ctx context.Context, args []string) error {
			msg, err := newClient(cfg).Toggle(ctx)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func versionCommand(root *ff.FlagSet, cfg *RootConfig) *ff.Command {
	return &ff.Command{
		Name:      "version",
		Usage:     "dcrctl version [FLAGS]",
		ShortHelp: "print the server's version",
		Flags:     ff.NewFlagSet("version").SetParent(root),
		Exec: func(ctx context.Context, args []string) error {
			v, err := newClient(cfg).Version(ctx)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
}

func logCommand(root *ff.FlagSet, cfg *RootConfig) *ff.Command {
	return &ff.Command{
		Name:      "log",
		Usage:     "dcrctl log [FLAGS] [FILE|-]",
		ShortHelp: "send a file or stdin to the logger endpoint",
		Flags:     ff.NewFlagSet("log").SetParent(root),
		Exec: func(ctx context.Context, args []string) error {
			var r io.Reader = os.Stdin
			if len(args) > 1 {
				return fmt.Errorf("expected at most one file, got %d", len(args))
			}
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			msg, err := newClient(cfg).Log(ctx, r)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func inspectCommand(root *ff.FlagSet, cfg *RootConfig) *ff.Command {
	return &ff.Command{
		Name:      "inspect",
		Usage:     "dcrctl inspect [FLAGS] [PATH]",
		ShortHelp: "print what the server saw of a GET request",
		Flags:     ff.NewFlagSet("inspect").SetParent(root),
		Exec: func(ctx context.Context, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			doc, err := newClient(cfg).Inspect(ctx, path)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newClient(cfg *RootConfig) *client.Client {
	return client.New(cfg.URL, logger)
}

func main() {
	log := logger.Sugar()

	var cfg RootConfig
	flags := ff.NewFlagSet("dcrctl")
	must.Do(flags.AddStruct(&cfg))

	cmd := &ff.Command{
		Name:  "dcrctl",
		Usage: "dcrctl <COMMAND> [FLAGS]",
		Flags: flags,
		Exec: func(ctx context.Context, args []string) error {
			return ff.ErrHelp
		},
		Subcommands: []*ff.Command{
			healthCommand(flags, &cfg),
			toggleCommand(flags, &cfg),
			versionCommand(flags, &cfg),
			logCommand(flags, &cfg),
			inspectCommand(flags, &cfg),
		},
	}

	if err := cmd.Parse(os.Args[1:], ff.WithEnvVarPrefix("DCRCTL")); err != nil {
		if !errors.Is(err, ff.ErrHelp) {
			log.Error(err)
		}
		must.Get(fmt.Fprintln(os.Stderr, ffhelp.Command(cmd.GetSelected())))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	err := cmd.Run(ctx)
	switch {
	case errors.Is(err, ff.ErrHelp):
		must.Get(fmt.Fprintln(os.Stderr, ffhelp.Command(cmd.GetSelected())))
		os.Exit(1)
	case errors.Is(err, ErrUnhealthy):
		cancel()
		os.Exit(1)
	case err != nil:
		log.Error(err)
		cancel()
		os.Exit(1)
	}
}
