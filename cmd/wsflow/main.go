package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/sonirico/wsflow"
)

const version = "0.1.0"

// app holds what the root command prepares for its subcommands.
type app struct {
	in  io.Reader
	out io.Writer

	cnf    *AppConfig
	logger wsflow.Logger
}

func newApp(in io.Reader, out io.Writer) *app {
	return &app{in: in, out: out}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:    "wsflow",
		Usage:   "WebSocket message flows: echo chat, echo backend and streaming transcription",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Overrides log.level of the configuration file",
			},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			a.chatCommand(),
			a.echoServerCommand(),
			a.transcribeCommand(),
		},
	}
}

func (a *app) setup(ctx context.Context, c *cli.Command) (context.Context, error) {
	appCnf, err := readYamlConfigFile(c.String("config"))
	if err != nil {
		return ctx, err
	}
	if c.IsSet("log-level") {
		appCnf.Log.Level = c.String("log-level")
	}

	logger, err := newLogger(appCnf.Log.Level)
	if err != nil {
		return ctx, err
	}

	a.cnf = appCnf
	a.logger = wsflow.NewLogrusLogger(logger)
	return ctx, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newApp(os.Stdin, os.Stdout).command().Run(ctx, os.Args)
	if err != nil {
		logrus.Fatalln(err)
	}
}
