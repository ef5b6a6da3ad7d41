package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/chriscow/sous-voice/internal/config"
	"github.com/chriscow/sous-voice/pkg/assistant"
	"github.com/chriscow/sous-voice/pkg/audio/playback"
	"github.com/chriscow/sous-voice/pkg/audio/wav"
	"github.com/chriscow/sous-voice/pkg/backend"
	"github.com/chriscow/sous-voice/pkg/plugin"
	_ "github.com/chriscow/sous-voice/pkg/plugin/console"  // Import to register console plugins
	_ "github.com/chriscow/sous-voice/pkg/plugin/fake"     // Import to register fake plugins
	_ "github.com/chriscow/sous-voice/pkg/plugin/openai"   // Import to register OpenAI plugin
	_ "github.com/chriscow/sous-voice/pkg/plugin/wsbridge" // Import to register transcript bridge plugin
	"github.com/chriscow/sous-voice/pkg/timer"
	"github.com/chriscow/sous-voice/pkg/version"
	"github.com/chriscow/sous-voice/pkg/voice"
)

var rootCmd = &cobra.Command{
	Use:   "sous",
	Short: "Sous - a hands-free cooking assistant",
	Long: `sous talks to the cooking assistant backend by voice or by text. Say
"hey sous" followed by a command, or just "hey sous" and then the command.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a hands-free voice session",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runVoice(ctx, cfg, logger)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send one typed message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newBackend(cfg, logger)
		if err != nil {
			return err
		}

		asst, err := assistant.New(assistant.Config{
			Backend: client,
			OnMessage: func(m assistant.Message) {
				if m.Role != assistant.RoleUser && m.Text != assistant.Welcome {
					printMessage(os.Stdout, m)
				}
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}

		resp := asst.SendTyped(cmd.Context(), strings.Join(args, " "))
		if resp == nil {
			return errors.New("nothing to send")
		}
		asst.Wait()
		if spoken := resp.Base().Spoken; spoken != "" && spoken != resp.Base().Display {
			fmt.Printf("   (spoken) %s\n", spoken)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active cooking sessions and their timers",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newBackend(cfg, logger)
		if err != nil {
			return err
		}

		sessions, err := client.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No active sessions")
			return nil
		}

		now := time.Now()
		fmt.Printf("%-8s %-30s %s\n", "SESSION", "RECIPE", "STEP")
		fmt.Println("------------------------------------------------------------")
		for _, s := range sessions {
			fmt.Printf("%-8d %-30s %d/%d\n", s.SessionID, s.Recipe, s.CurrentStep, s.TotalSteps)
			for _, t := range s.ActiveTimers {
				started := timer.Started{DurationSeconds: t.DurationSeconds, StartedAt: t.StartedAt}
				fmt.Printf("         ⏲ %-27s %s\n", t.Label, timer.FormatClock(started.Remaining(now)))
			}
		}
		return nil
	},
}

var endCmd = &cobra.Command{
	Use:   "end <sessionId>",
	Short: "End a cooking session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := newBackend(cfg, logger)
		if err != nil {
			return err
		}

		msg, err := client.EndSession(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Speech plugin commands",
}

var pluginListCmd = &cobra.Command{
	Use:   "list [kind]",
	Short: "List registered plugins",
	Long: `List all registered plugins or plugins of a specific kind.
Available kinds: stt, tts`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()

		kind := ""
		if len(args) > 0 {
			kind = args[0]
		}

		plugins := plugin.List(kind)
		if len(plugins) == 0 {
			if kind == "" {
				fmt.Println("No plugins registered")
			} else {
				fmt.Printf("No plugins registered for kind: %s\n", kind)
			}
			return nil
		}

		fmt.Printf("%-8s %-20s %-10s %s\n", "KIND", "NAME", "VERSION", "DESCRIPTION")
		fmt.Println("------------------------------------------------------------")
		for _, p := range plugins {
			version := p.Version
			if version == "" {
				version = "N/A"
			}
			description := p.Description
			if description == "" {
				description = "No description"
			}
			fmt.Printf("%-8s %-20s %-10s %s\n", p.Kind, p.Name, version, description)
		}

		logger.Debug("Listed plugins",
			slog.Int("count", len(plugins)),
			slog.String("filter_kind", kind))
		return nil
	},
}

var playCmd = &cobra.Command{
	Use:   "play <file.wav>",
	Short: "Play an utterance saved by the wav sink on the output device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		r, err := wav.NewReader(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		player, err := playback.New()
		if err != nil {
			return err
		}
		defer player.Close()

		return player.Play(ctx, r.PCM(), r.Format())
	},
}

func runVoice(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Starting voice session",
		slog.String("service", "sous"),
		slog.String("version", version.Version),
		slog.String("backend", cfg.Backend.URL),
		slog.String("stt", cfg.Plugins.STT),
		slog.String("tts", cfg.Plugins.TTS))

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	client, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	recognizer, err := plugin.NewRecognizer(cfg.Plugins.STT, cfg.Plugins.PluginOptions(cfg.Plugins.STT))
	if err != nil {
		return err
	}
	synth, err := plugin.NewSynthesizer(cfg.Plugins.TTS, cfg.Plugins.PluginOptions(cfg.Plugins.TTS))
	if err != nil {
		return err
	}
	if c, ok := synth.(io.Closer); ok {
		// deferred before the controller, so it runs after speech stops
		defer c.Close()
	}

	repl := newREPL(os.Stdout)

	var asst *assistant.Assistant
	ctrl, err := voice.New(voice.Config{
		Recognizer:  recognizer,
		Synthesizer: synth,
		OnCommand: func(ctx context.Context, text string) {
			asst.SendVoice(ctx, text)
		},
		OnError: func(err error) {
			repl.printf("-- voice off: %v\n", err)
		},
		Authorized:  func() bool { return cfg.Backend.Token != "" },
		WakePhrases: cfg.Voice.WakePhrases,
		FollowUp:    cfg.Voice.FollowUp,
		Voice:       cfg.Voice.Voice,
		Lang:        cfg.Voice.Lang,
		Rate:        cfg.Voice.Rate,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	var notifier timer.Notifier
	if cfg.Notifications {
		notifier = timer.DesktopNotifier{AppName: "Sous"}
	}
	asst, err = assistant.New(assistant.Config{
		Backend:   client,
		Speaker:   ctrl,
		Notifier:  notifier,
		OnMessage: repl.message,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer asst.Wait()

	ctrl.OnStateChange(func(from, to voice.MicState) {
		repl.state(to)
	})

	if err := asst.RefreshSessions(ctx); err != nil {
		logger.Warn("could not load sessions", slog.String("error", err.Error()))
	}
	ctrl.Enable(ctx)

	go tickTimers(ctx, asst)

	if cfg.Plugins.STT == "console" {
		// stdin belongs to the recognizer
		<-ctx.Done()
		return nil
	}
	return repl.run(ctx, os.Stdin, asst, ctrl)
}

func tickTimers(ctx context.Context, asst *assistant.Assistant) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			asst.Tick(now)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting metrics server", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", slog.String("error", err.Error()))
	}
}

func newBackend(cfg *config.Config, logger *slog.Logger) (*backend.Client, error) {
	return backend.New(backend.Config{
		BaseURL: cfg.Backend.URL,
		Token:   cfg.Backend.Token,
		Logger:  logger,
	})
}

// loadConfig reads the configuration and applies command line flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend-url") {
		cfg.Backend.URL, _ = flags.GetString("backend-url")
	}
	if flags.Changed("token") {
		cfg.Backend.Token, _ = flags.GetString("token")
	}
	if flags.Lookup("stt") != nil && flags.Changed("stt") {
		cfg.Plugins.STT, _ = flags.GetString("stt")
	}
	if flags.Lookup("tts") != nil && flags.Changed("tts") {
		cfg.Plugins.TTS, _ = flags.GetString("tts")
	}
	if flags.Lookup("voice") != nil && flags.Changed("voice") {
		cfg.Voice.Voice, _ = flags.GetString("voice")
	}
	if flags.Lookup("wake") != nil && flags.Changed("wake") {
		cfg.Voice.WakePhrases, _ = flags.GetStringSlice("wake")
	}
	if flags.Lookup("follow-up") != nil && flags.Changed("follow-up") {
		cfg.Voice.FollowUp, _ = flags.GetDuration("follow-up")
	}
	if flags.Lookup("metrics-addr") != nil && flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Lookup("no-notify") != nil && flags.Changed("no-notify") {
		off, _ := flags.GetBool("no-notify")
		cfg.Notifications = !off
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogger() *slog.Logger {
	logFormat := os.Getenv("SOUS_LOG_FORMAT")
	logLevel := os.Getenv("SOUS_LOG_LEVEL")

	opts := &slog.HandlerOptions{}
	switch logLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelWarn
	}

	// stdout carries the conversation
	var handler slog.Handler
	if logFormat == "console" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (or set SOUS_CONFIG)")
	rootCmd.PersistentFlags().String("backend-url", "", "Cooking service URL (or set SOUS_BACKEND_URL)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for the cooking service (or set SOUS_TOKEN)")

	runCmd.Flags().String("stt", "", "Recognizer plugin (console, wsbridge, fake)")
	runCmd.Flags().String("tts", "", "Synthesizer plugin (console, openai, fake)")
	runCmd.Flags().String("voice", "", "Preferred synthesizer voice")
	runCmd.Flags().StringSlice("wake", nil, "Wake phrases, comma separated")
	runCmd.Flags().Duration("follow-up", 0, "How long to listen after a bare wake phrase")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().Bool("no-notify", false, "Disable desktop notifications when timers finish")

	pluginCmd.AddCommand(pluginListCmd)
	rootCmd.AddCommand(versionCmd, runCmd, sendCmd, sessionsCmd, endCmd, playCmd, pluginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
