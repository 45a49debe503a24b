package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"posebridge/pkg/bridge/foxglove"
	"posebridge/pkg/config"
	"posebridge/pkg/engine"
	"posebridge/pkg/logger"
	"posebridge/pkg/render"
	"posebridge/pkg/transport"
	"posebridge/pkg/tui"
)

type serveFlags struct {
	primary     string
	fallback    string
	readTimeout string
	tick        string
	jsonl       string
	foxglove    bool
	wsAddr      string
}

func newServeCmd(root *rootFlags, withTUI bool) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive poses and apply them headless",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return usageError{err}
			}

			logOut := cmd.ErrOrStderr()
			if withTUI {
				// The terminal belongs to the TUI.
				logOut = io.Discard
			}
			log, err := newLogger(logOut, cfg.Log.Level)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, serveOptions{
				logger: log,
				tui:    withTUI,
				in:     cmd.InOrStdin(),
				out:    cmd.OutOrStdout(),
			})
		},
	}
	if withTUI {
		cmd.Use = "watch"
		cmd.Short = "Receive poses and show the applied transform in the terminal"
	}

	fs := cmd.Flags()
	fs.StringVar(&flags.primary, "primary", "", "address for the first connection (default from config)")
	fs.StringVar(&flags.fallback, "fallback", "", "address for connections after a disconnect (default from config)")
	fs.StringVar(&flags.readTimeout, "read-timeout", "", "fail the receiver when no bytes arrive for this long")
	fs.StringVar(&flags.tick, "tick", "", "consumer tick interval")
	fs.StringVar(&flags.jsonl, "jsonl", "", "append samples and state changes to this JSONL file")
	fs.BoolVar(&flags.foxglove, "foxglove", false, "serve the pose to Foxglove Studio over websocket")
	fs.StringVar(&flags.wsAddr, "ws-addr", "", "Foxglove websocket address")
	return cmd
}

func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("primary") {
		cfg.Receiver.PrimaryAddr = f.primary
	}
	if changed("fallback") {
		cfg.Receiver.FallbackAddr = f.fallback
	}
	if changed("read-timeout") {
		cfg.Receiver.ReadTimeout = f.readTimeout
	}
	if changed("tick") {
		cfg.Consumer.Tick = f.tick
	}
	if changed("jsonl") {
		cfg.Log.JSONL = f.jsonl
	}
	if changed("foxglove") {
		cfg.Foxglove.Enabled = f.foxglove
	}
	if changed("ws-addr") {
		cfg.Foxglove.WSAddr = f.wsAddr
	}
}

type serveOptions struct {
	logger *slog.Logger
	tui    bool
	in     io.Reader
	out    io.Writer
	// ready is called once the receiver is listening.
	ready func(*transport.Receiver)
}

func foxgloveConfig(cfg config.Config) foxglove.Config {
	fc := foxglove.DefaultConfig()
	fc.WSAddr = cfg.Foxglove.WSAddr
	fc.ParentFrameID = cfg.Foxglove.ParentFrame
	fc.FrameID = cfg.Foxglove.FrameID
	fc.MarkerSize = cfg.Foxglove.MarkerSize
	fc.Scale = cfg.Consumer.Scale
	return fc
}

// serve runs the receiver and its consumers until ctx is done, the
// consumer exits or the receiver fails. In TUI mode a receiver failure is
// shown until the user quits.
func serve(ctx context.Context, cfg config.Config, opts serveOptions) error {
	log := opts.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := engine.NewHub()

	var jsonl *logger.JSONLWriter
	if cfg.Log.JSONL != "" {
		file, err := os.OpenFile(cfg.Log.JSONL, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open jsonl log: %w", err)
		}
		defer file.Close()
		jsonl = logger.NewJSONLWriter(file)
	}

	var fox *foxglove.Server
	if cfg.Foxglove.Enabled {
		fox = foxglove.NewServer(foxgloveConfig(cfg), hub)
	}

	rx := transport.NewReceiver(cfg.Receiver.PrimaryAddr, cfg.Receiver.FallbackAddr,
		transport.WithLogger(log.With("component", "receiver")),
		transport.WithReadTimeout(cfg.ReadTimeoutDuration()),
		transport.WithSampleHandler(hub.Publish),
		transport.WithStateHandler(func(st transport.State) {
			if jsonl != nil {
				jsonl.WriteState(st)
			}
			if fox != nil {
				fox.LogState(st)
			}
		}),
	)
	if err := rx.Start(ctx); err != nil {
		return err
	}
	if opts.ready != nil {
		opts.ready(rx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if jsonl != nil {
		sub := hub.Subscribe()
		g.Go(func() error {
			jsonl.Consume(gctx, sub)
			return nil
		})
	}
	if fox != nil {
		log.Info("foxglove bridge enabled", "addr", cfg.Foxglove.WSAddr)
		g.Go(func() error {
			return fox.Run(gctx)
		})
	}
	g.Go(func() error {
		<-rx.Done()
		if err := rx.Err(); err != nil && !opts.tui {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// The session ends with its consumer.
		defer cancel()
		if opts.tui {
			return runTUI(gctx, rx, cfg, opts)
		}
		loop := render.Loop{
			Source: rx,
			Scale:  cfg.Consumer.Scale,
			Tick:   cfg.TickDuration(),
			Target: changeLogger(log),
		}
		return loop.Run(gctx)
	})

	err := g.Wait()
	if stopErr := rx.Stop(); err == nil {
		err = stopErr
	}
	return err
}

// changeLogger logs the applied transform whenever it changes.
func changeLogger(log *slog.Logger) render.Target {
	var last render.Transform
	return render.TargetFunc(func(tf render.Transform) {
		if tf == last {
			return
		}
		last = tf
		roll, pitch, yaw := tf.Euler()
		log.Debug("transform applied",
			"x", tf.Position.X, "y", tf.Position.Y, "z", tf.Position.Z,
			"roll", roll, "pitch", pitch, "yaw", yaw)
	})
}

func runTUI(ctx context.Context, rx *transport.Receiver, cfg config.Config, opts serveOptions) error {
	model := tui.NewModel(rx, rx, cfg.Consumer.Scale, cfg.TickDuration())
	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(opts.in),
		tea.WithOutput(opts.out),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
