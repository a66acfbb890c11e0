package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"linepreview/internal/config"
	"linepreview/internal/host/acme"
)

// chromeNames are the browser binaries snapshot can drive, in search order.
var chromeNames = []string{
	"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// doctor tallies check results onto out.
type doctor struct {
	out                    io.Writer
	passed, warned, failed int
}

func (d *doctor) pass(check, detail string) {
	fmt.Fprintf(d.out, "  [PASS] %-20s %s\n", check, detail)
	d.passed++
}

func (d *doctor) fail(check, detail string) {
	fmt.Fprintf(d.out, "  [FAIL] %-20s %s\n", check, detail)
	d.failed++
}

func (d *doctor) warn(check, detail string) {
	fmt.Fprintf(d.out, "  [WARN] %-20s %s\n", check, detail)
	d.warned++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your linepreview setup",
		Long: `Verifies the configuration, the web port, the preview output directory,
the browser used for snapshots and the acme connection. Reports pass/fail
for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := &doctor{out: cmd.OutOrStdout()}
			fmt.Fprintf(d.out, "linepreview doctor v%s\n\n", version)

			cfgPath := config.ExpandPath(resolveConfigPath())
			var cfg *config.Config
			if _, err := os.Stat(cfgPath); err != nil {
				d.warn("Config file", fmt.Sprintf("not found at %s (using defaults)", cfgPath))
				cfg = config.Defaults()
			} else {
				d.pass("Config file", cfgPath)
				if cfg, err = config.Load(cfgPath); err != nil {
					d.fail("Config validation", err.Error())
					return d.summary()
				}
				d.pass("Config validation", "valid")
			}

			if cfg.Web.Enabled {
				if err := checkPort(cfg.Web.Host, cfg.Web.Port); err != nil {
					d.warn("Web port", fmt.Sprintf("port %d may be in use: %v", cfg.Web.Port, err))
				} else {
					d.pass("Web port", fmt.Sprintf("%s:%d available", cfg.Web.Host, cfg.Web.Port))
				}
			}

			if out := cfg.Watch.OutputPath; out != "" {
				if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
					d.fail("Preview output", fmt.Sprintf("cannot create directory: %v", err))
				} else {
					d.pass("Preview output", out)
				}
			}

			if path, err := findChrome(cfg.Snapshot.ChromePath); err != nil {
				d.warn("Chrome", "not found; snapshot will not work")
			} else {
				d.pass("Chrome", path)
			}

			if id, err := acme.WinIDFromEnv(); err != nil {
				d.warn("Acme", "not running inside acme; watch needs --winid")
			} else {
				d.pass("Acme", fmt.Sprintf("window %d", id))
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					d.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					d.pass("Log file", cfg.General.LogFile)
				}
			}

			return d.summary()
		},
	}
}

func (d *doctor) summary() error {
	fmt.Fprintf(d.out, "\nResults: %d passed, %d warnings, %d failed\n", d.passed, d.warned, d.failed)
	if d.failed > 0 {
		return fmt.Errorf("%d check(s) failed", d.failed)
	}
	return nil
}

// findChrome returns configured when set and present, otherwise the first
// known browser binary on PATH.
func findChrome(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", err
		}
		return configured, nil
	}
	for _, name := range chromeNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
