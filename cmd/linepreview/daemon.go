package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.linepreview.serve"
	systemdUnit  = "linepreview.service"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the preview server in the background (launchd/systemd)",
	}
	cmd.AddCommand(installDaemonCmd())
	cmd.AddCommand(uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install a user service running linepreview serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := filepath.Abs(resolveConfigPath())
			if err != nil {
				return err
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}

			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(cmd.OutOrStdout(), home, execPath, cfgPath)
			case "linux":
				return installSystemd(cmd.OutOrStdout(), home, execPath, cfgPath)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the linepreview user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			var path string
			switch runtime.GOOS {
			case "darwin":
				path = launchdPath(home)
			case "linux":
				path = systemdPath(home)
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon uninstalled: %s\n", path)
			return nil
		},
	}
}

func launchdPath(home string) string {
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
}

func systemdPath(home string) string {
	return filepath.Join(home, ".config", "systemd", "user", systemdUnit)
}

// fillTemplate substitutes the {{KEY}} placeholders of a service template.
func fillTemplate(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func installLaunchd(out io.Writer, home, execPath, cfgPath string) error {
	logDir := filepath.Join(home, ".linepreview", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	plist := fillTemplate(launchdTemplate, map[string]string{
		"EXEC":    execPath,
		"CONFIG":  cfgPath,
		"LABEL":   launchdLabel,
		"LOG":     filepath.Join(logDir, "linepreview.log"),
		"ERR_LOG": filepath.Join(logDir, "linepreview-error.log"),
	})
	path := launchdPath(home)
	if err := writeServiceFile(path, plist); err != nil {
		return err
	}
	fmt.Fprintf(out, "Daemon installed: %s\n", path)
	fmt.Fprintf(out, "To start: launchctl load %s\n", path)
	fmt.Fprintf(out, "To stop:  launchctl unload %s\n", path)
	return nil
}

func installSystemd(out io.Writer, home, execPath, cfgPath string) error {
	unit := fillTemplate(systemdTemplate, map[string]string{
		"EXEC":   execPath,
		"CONFIG": cfgPath,
	})
	path := systemdPath(home)
	if err := writeServiceFile(path, unit); err != nil {
		return err
	}
	name := strings.TrimSuffix(systemdUnit, ".service")
	fmt.Fprintf(out, "Daemon installed: %s\n", path)
	fmt.Fprintf(out, "To start:  systemctl --user start %s\n", name)
	fmt.Fprintf(out, "To enable: systemctl --user enable %s\n", name)
	fmt.Fprintf(out, "To stop:   systemctl --user stop %s\n", name)
	return nil
}

func writeServiceFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=linepreview LINE message preview server
After=network.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
