package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pbaille/timeclock/internal/api"
	"github.com/pbaille/timeclock/internal/domain"
	"github.com/pbaille/timeclock/internal/pipeline"
)

// lineSource turns input lines into frames, as a keyboard-wedge scanner
// types them. Lines read while paused are dropped.
type lineSource struct {
	paused atomic.Bool
}

func (l *lineSource) Pause()  { l.paused.Store(true) }
func (l *lineSource) Resume() { l.paused.Store(false) }

func (l *lineSource) run(ctx context.Context, r io.Reader, frames chan<- pipeline.Frame) {
	defer close(frames)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if l.paused.Load() {
			fmt.Fprintln(os.Stderr, "(scanner busy, read ignored)")
			continue
		}
		select {
		case frames <- pipeline.Frame{Text: line, Source: domain.SourceQRScan}:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case frames <- pipeline.Frame{Err: fmt.Errorf("read input: %w", err)}:
		case <-ctx.Done():
		}
	}
}

func printOutcome(o pipeline.Outcome) {
	switch o.Kind {
	case pipeline.KindSuccess:
		fmt.Printf("OK    %s\n", o.Message)
	case pipeline.KindInfo:
		fmt.Printf("INFO  %s\n", o.Message)
	default:
		fmt.Printf("ERROR %s\n", o.Message)
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Read QR payloads from stdin, one per line, and record them",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			sess, err := getSession(s)
			if err != nil {
				return err
			}

			log, err := getLogger()
			if err != nil {
				return err
			}
			defer log.Close()

			src := &lineSource{}
			p, err := buildPipeline(s, getClient(), sess, log, src)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			frames := make(chan pipeline.Frame)
			go src.run(ctx, os.Stdin, frames)

			fmt.Printf("Scanning as %s, one code per line (Ctrl-C to stop)\n", sess.User.DisplayName)
			err = p.Run(ctx, frames, printOutcome)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func submitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit [code]",
		Short: "Record a manually entered code",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			sess, err := getSession(s)
			if err != nil {
				return err
			}

			log, err := getLogger()
			if err != nil {
				return err
			}
			defer log.Close()

			p, err := buildPipeline(s, getClient(), sess, log, nil)
			if err != nil {
				return err
			}

			out, ok := p.Handle(cmd.Context(), pipeline.NewEvent(strings.Join(args, " "), domain.SourceManual))
			if !ok {
				return errors.New("scanner busy")
			}
			printOutcome(out)
			return out.Err
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kiosk HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			sess, err := getSession(s)
			if err != nil {
				return err
			}

			log, err := getLogger()
			if err != nil {
				return err
			}
			defer log.Close()

			client := getClient()
			p, err := buildPipeline(s, client, sess, log, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Starting kiosk on %s for %s\n", addr, sess.User.DisplayName)
			return api.New(p, client, s, env.Location, log).Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
