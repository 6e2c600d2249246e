package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ical2mail/internal/config"
	"ical2mail/internal/digest"
	appLog "ical2mail/internal/log"
	"ical2mail/internal/metrics"
	"ical2mail/internal/web"
)

var version = "0.1.0-dev"

// rootFlags holds persistent CLI flag values.
type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		appLog.Error("ical2mail failed", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "ical2mail",
		Short:         "Mail a digest of upcoming events from iCalendar feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "ical2mail.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	root.AddCommand(
		newRunCommand(flags),
		newScheduleCommand(flags),
		newServeCommand(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func newRunCommand(flags *rootFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch all calendars once and send (or print) the digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.DryRun = true
			}
			if err := prepareMail(cfg); err != nil {
				return err
			}

			p, err := digest.New(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return p.Run(ctx, digest.Mailer(cfg))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the digest instead of mailing it")
	return cmd
}

func newScheduleCommand(flags *rootFlags) *cobra.Command {
	var immediately bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Send the digest repeatedly on the configured cron schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := prepareMail(cfg); err != nil {
				return err
			}
			p, err := digest.New(cfg, digest.WithMetrics(metrics.Default()))
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			pass := func() {
				if err := p.Run(ctx, digest.Mailer(cfg)); err != nil {
					appLog.Error("scheduled pass failed", err)
				}
			}

			c := cron.New()
			if _, err := c.AddFunc(cfg.Schedule, pass); err != nil {
				return fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
			}
			appLog.Info("scheduler started", "schedule", cfg.Schedule)
			if immediately {
				pass()
			}
			c.Start()

			<-ctx.Done()
			appLog.Info("scheduler stopping")
			<-c.Stop().Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&immediately, "now", false, "Also run one pass right away")
	return cmd
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the aggregated agenda over HTTP for previewing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				cfg.Listen = listen
			}
			// Mail settings are not needed to preview.
			check := *cfg
			check.DryRun = true
			if err := check.Validate(); err != nil {
				return err
			}
			p, err := digest.New(cfg, digest.WithMetrics(metrics.Default()))
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			return web.NewServer(cfg, p).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if errors.Is(err, config.ErrCreated) {
		return nil, fmt.Errorf("%s: %w", flags.configPath, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	levelName := cfg.LogLevel
	if flags.logLevel != "" {
		levelName = flags.logLevel
	}
	level, err := appLog.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"config_path", flags.configPath,
		"timezone", cfg.Timezone,
		"days_prev", cfg.DaysPrev,
		"days_next", cfg.DaysNext,
		"calendar_count", len(cfg.Calendars),
		"parallel_fetches", cfg.ParallelFetches,
		"dry_run", cfg.DryRun,
	)
	return cfg, nil
}

// prepareMail validates the config and prompts for a missing SMTP password
// when running interactively.
func prepareMail(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun || cfg.Mail.User == "" || cfg.Mail.Password != "" {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("mail.smtp_password is empty and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "SMTP password for %s: ", cfg.Mail.User)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	cfg.Mail.Password = string(pw)
	return nil
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
