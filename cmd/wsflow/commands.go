package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/sonirico/wsflow"
	"github.com/sonirico/wsflow/echoserver"
	"github.com/sonirico/wsflow/transcription"
)

func (a *app) chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Send every stdin line to a WebSocket server and print what comes back",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "WebSocket URL, overrides websocket.url",
			},
		},
		Action: a.chat,
	}
}

func (a *app) chat(ctx context.Context, c *cli.Command) error {
	cnf := a.cnf.WebSocket
	if c.IsSet("url") {
		cnf.URL = c.String("url")
	}

	flow, err := wsflow.NewFlowFromConfig(a.logger, cnf)
	if err != nil {
		return err
	}

	flow.On(wsflow.EventConnect, func(wsflow.Event) {
		go a.sendLines(flow)
	})

	flow.Open(ctx)

	for m, err := range flow.Messages(ctx) {
		if err != nil {
			return err
		}
		if text, ok := wsflow.TextOf(m); ok {
			fmt.Fprintln(a.out, text)
			continue
		}
		fmt.Fprintf(a.out, "<%d bytes of binary data>\n", len(m.Data()))
	}

	return nil
}

// sendLines sends stdin line by line and closes the flow once stdin is exhausted.
func (a *app) sendLines(flow *wsflow.Flow) {
	defer flow.Close()

	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		flow.Send(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		a.logger.Errorf("cannot read stdin: %s", err)
	}
}

func (a *app) echoServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "echo-server",
		Usage: "Run a WebSocket backend that echoes every frame",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
				Value: ":8080",
			},
		},
		Action: a.echoServer,
	}
}

func (a *app) echoServer(ctx context.Context, c *cli.Command) error {
	srv := echoserver.NewServer(a.logger, c.String("addr"), echoserver.Hooks{})

	errC := make(chan error, 1)
	go func() {
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		a.logger.Infoln("exit requested, shutting down")
		return srv.Shutdown()
	}
}

func (a *app) transcribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "transcribe",
		Usage: "Stream a raw audio file to a speech service and print the transcript",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Speech service WebSocket URL, overrides speech.url",
			},
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Raw audio file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "continuous",
				Usage: "Keep recording across pauses in speech",
			},
		},
		Action: a.transcribe,
	}
}

func (a *app) transcribe(ctx context.Context, c *cli.Command) error {
	cnf := a.cnf.Speech
	if c.IsSet("url") {
		cnf.URL = c.String("url")
	}
	if cnf.URL == "" {
		return errors.Wrap(wsflow.ErrInvalidConfig, "speech url is required")
	}

	file := c.String("file")
	source := func(context.Context) (io.ReadCloser, error) {
		return os.Open(file)
	}

	recognizer := transcription.NewStreamRecognizer(a.logger, cnf, source, a.cnf.Transcription)
	manager := transcription.NewManager(a.logger, recognizer, a.cnf.Transcription)
	defer manager.Destroy()

	if c.Bool("continuous") {
		manager.ToggleContinuousMode()
	}

	done := a.watchTranscript(manager)

	manager.StartRecording(ctx)

	select {
	case <-done:
	case <-ctx.Done():
		manager.StopRecording()
	}

	state := manager.State()
	if state.ErrorMessage != "" {
		a.logger.Warnln(state.ErrorMessage)
	}
	fmt.Fprintln(a.out, state.Transcript)

	return nil
}

// watchTranscript prints every transcript change. The returned channel is closed when a
// started session stops recording or the session fails before it starts.
func (a *app) watchTranscript(manager *transcription.Manager) <-chan struct{} {
	var (
		mu      sync.Mutex
		last    string
		started atomic.Bool
		once    sync.Once
		done    = make(chan struct{})
	)

	manager.OnChange(func(s transcription.State) {
		mu.Lock()
		if s.Transcript != last && s.Transcript != "" {
			last = s.Transcript
			fmt.Fprintf(a.out, "... %s\n", s.Transcript)
		}
		mu.Unlock()

		if s.Recording {
			started.Store(true)
			return
		}
		if started.Load() || s.ErrorMessage != "" {
			once.Do(func() { close(done) })
		}
	})

	return done
}
