package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"linepreview/internal/bus"
	"linepreview/internal/config"
	"linepreview/internal/metrics"
	"linepreview/internal/preview"
	"linepreview/internal/render"
)

var (
	version    = "0.1.0"
	logger     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	configPath string // overridable via --config flag
	logLevel   string // overridable via --log-level flag
)

func main() {
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "linepreview",
		Short: "Preview LINE bot messages as a chat window",
		Long: `linepreview renders LINE messaging API JSON (text, sticker, image, video,
buttons, confirm, carousel and imagemap messages) into the chat bubbles a
user would see. It previews files from the command line, serves a live
editor in the browser and follows acme windows as you type.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.linepreview/config.json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override general.logLevel (debug, info, warn, error)")

	root.AddCommand(initCmd())
	root.AddCommand(renderCmd())
	root.AddCommand(inspectCmd())
	root.AddCommand(snapshotCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(daemonCmd())
	root.AddCommand(versionCmd())
	return root
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config (defaults when the file is missing) and
// reconfigures the package logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefaults(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	l, err := newLogger(cfg.General)
	if err != nil {
		return nil, err
	}
	logger = l
	return cfg, nil
}

// newLogger builds a text logger writing to stderr, or appending to
// general.logFile when one is set.
func newLogger(g config.GeneralConfig) (*slog.Logger, error) {
	level, err := parseLevel(g.LogLevel)
	if err != nil {
		return nil, err
	}
	var out io.Writer = os.Stderr
	if g.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// pageFromConfig maps the preview settings onto the chat-window shell.
func pageFromConfig(p config.PreviewConfig) preview.Page {
	return preview.Page{
		BotName:          p.BotName,
		StylesheetURL:    p.StylesheetURL,
		SiteCSSURL:       p.SiteCSSURL,
		PreviewScriptURL: p.PreviewScriptURL,
		ScriptURLs:       p.ScriptURLs,
		KeyboardImageURL: p.KeyboardImageURL,
	}
}

// newService wires a preview service from the config. events and m may be
// nil.
func newService(cfg *config.Config, page preview.Page, events *bus.EventBus, m *metrics.Collector) (*preview.Service, error) {
	ids, err := render.NewIDSource(cfg.Preview.MapIDStrategy)
	if err != nil {
		return nil, err
	}
	return preview.New(preview.Config{
		Renderer:    render.New(render.Config{IDs: ids, Logger: logger}),
		Page:        page,
		LanguageIDs: cfg.Preview.LanguageIDs,
		Events:      events,
		Metrics:     m,
		Logger:      logger,
	}), nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linepreview %s\n", version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. preview.botName)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. web.port 9090)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("validation: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "paths",
		Short: "List every settable config path with its value",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			keys := make([]string, 0, len(paths))
			for k := range paths {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, paths[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}
