package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"linepreview/internal/domain"
	"linepreview/internal/locator"
	"linepreview/internal/message"
	"linepreview/internal/preview"
	"linepreview/internal/snapshot"
)

// wholeDocument is the --offset value that previews the entire input.
const wholeDocument = -1

// targetFlags select the message to preview inside an input file.
type targetFlags struct {
	offset int
	sel    string
	lang   string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.offset, "offset", wholeDocument, "byte offset of the cursor; -1 previews the whole input")
	cmd.Flags().StringVar(&f.sel, "sel", "", "byte range START:END to preview instead of the cursor's object")
	cmd.Flags().StringVar(&f.lang, "lang", "", "document language id (default: from the file extension, json for stdin)")
}

// target is the editor state reconstructed from the command line.
type target struct {
	doc    domain.Document
	cursor int
	sel    *domain.Selection
}

// whole reports whether the entire document is the snippet.
func (t target) whole() bool { return t.cursor == wholeDocument && t.sel.Empty() }

// readTarget reads path ("-" for stdin) and applies the flags.
func readTarget(path string, f targetFlags, stdin io.Reader) (target, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return target{}, fmt.Errorf("read input: %w", err)
	}

	lang := f.lang
	if lang == "" {
		if path == "-" {
			lang = "json"
		} else {
			lang = domain.LanguageForPath(path)
		}
	}
	sel, err := parseSelection(f.sel)
	if err != nil {
		return target{}, err
	}
	if f.offset < wholeDocument {
		return target{}, fmt.Errorf("--offset must be >= -1, got %d", f.offset)
	}
	return target{
		doc:    domain.Document{Text: string(data), LanguageID: lang},
		cursor: f.offset,
		sel:    sel,
	}, nil
}

// parseSelection parses "START:END"; an empty spec is no selection.
func parseSelection(spec string) (*domain.Selection, error) {
	if spec == "" {
		return nil, nil
	}
	a, b, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("--sel must be START:END, got %q", spec)
	}
	start, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return nil, fmt.Errorf("--sel start: %w", err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return nil, fmt.Errorf("--sel end: %w", err)
	}
	if start < 0 || end < 0 {
		return nil, fmt.Errorf("--sel offsets must be >= 0, got %q", spec)
	}
	return &domain.Selection{Start: start, End: end}, nil
}

// preview renders t through svc. kinds are the JSON language ids svc was
// built with.
func (t target) preview(svc *preview.Service, kinds []string) preview.Result {
	if t.whole() {
		if !domain.IsJSONKind(t.doc.LanguageID, kinds) {
			// Keep the wrong-kind notice for whole-file renders too.
			return svc.RenderPreview(t.doc, 0, nil)
		}
		return svc.RenderSnippet(t.doc.Text)
	}
	cursor := t.cursor
	if cursor == wholeDocument {
		cursor = 0
	}
	return svc.RenderPreview(t.doc, cursor, t.sel)
}

// snippet locates the message text without rendering it.
func (t target) snippet(kinds []string) (string, error) {
	if t.whole() {
		if !domain.IsJSONKind(t.doc.LanguageID, kinds) {
			return "", domain.ErrWrongDocumentKind
		}
		return strings.TrimSpace(t.doc.Text), nil
	}
	cursor := t.cursor
	if cursor == wholeDocument {
		cursor = 0
	}
	return locator.Locate(t.doc, cursor, t.sel, kinds)
}

// writeOutput writes data to path, or to w when path is "" or "-".
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func renderCmd() *cobra.Command {
	var (
		tf       targetFlags
		fragment bool
		output   string
		strict   bool
	)
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a message to an HTML page or fragment",
		Long: `Renders the message enclosing --offset (or the --sel range) in FILE and
prints the chat-window page. Use "-" to read from stdin. Failures print the
notice page instead; with --strict they also exit non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			t, err := readTarget(args[0], tf, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := newService(cfg, pageFromConfig(cfg.Preview), nil, nil)
			if err != nil {
				return err
			}

			res := t.preview(svc, cfg.Preview.LanguageIDs)
			out := res.HTML
			if fragment {
				out = res.Fragment
				if !res.OK() {
					out = preview.NoticeText(res.Err)
				}
			}
			if err := writeOutput(cmd.OutOrStdout(), output, []byte(out+"\n")); err != nil {
				return err
			}
			if !res.OK() {
				logger.Debug("render failed", "kind", res.Kind, "err", res.Err)
				if strict {
					return fmt.Errorf("%s: %w", res.Kind, res.Err)
				}
			}
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&fragment, "fragment", false, "print only the <li> fragment")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the message cannot be previewed")
	return cmd
}

func inspectCmd() *cobra.Command {
	var (
		tf   targetFlags
		dump bool
	)
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the message the preview would render",
		Long: `Locates the message like render does and prints its type and normalized
JSON. --dump prints the decoded Go value instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			t, err := readTarget(args[0], tf, cmd.InOrStdin())
			if err != nil {
				return err
			}
			snip, err := t.snippet(cfg.Preview.LanguageIDs)
			if err != nil {
				return err
			}
			msg, err := message.ParseString(snip)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if dump {
				fmt.Fprintln(w, litter.Options{HidePrivateFields: true, Compact: false}.Sdump(msg))
				return nil
			}
			data, err := message.Marshal(msg)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "type: %s\n", describe(msg))
			fmt.Fprintln(w, string(data))
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&dump, "dump", false, "dump the decoded message value")
	return cmd
}

// describe names a message, including its template type.
func describe(msg message.Message) string {
	switch m := msg.(type) {
	case message.TemplateMessage:
		return m.Type() + "/" + m.Template.TemplateType()
	case message.Imagemap:
		return fmt.Sprintf("%s (%d areas)", m.Type(), len(m.Actions))
	default:
		return msg.Type()
	}
}

func snapshotCmd() *cobra.Command {
	var (
		tf      targetFlags
		output  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "snapshot FILE -o OUT.png",
		Short: "Screenshot the preview with headless Chrome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			t, err := readTarget(args[0], tf, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := newService(cfg, pageFromConfig(cfg.Preview), nil, nil)
			if err != nil {
				return err
			}
			res := t.preview(svc, cfg.Preview.LanguageIDs)
			if !res.OK() {
				logger.Warn("capturing notice page", "kind", res.Kind, "err", res.Err)
			}

			if timeout <= 0 {
				timeout = time.Duration(cfg.Snapshot.TimeoutSeconds) * time.Second
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shooter := snapshot.New(snapshot.Config{
				Width:      cfg.Snapshot.Width,
				Height:     cfg.Snapshot.Height,
				Timeout:    timeout,
				ChromePath: cfg.Snapshot.ChromePath,
				Logger:     logger,
			})
			if err := shooter.CaptureFile(ctx, res.HTML, output); err != nil {
				return err
			}
			logger.Info("snapshot written", "path", output)
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "PNG file to write")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "capture timeout (default: snapshot.timeoutSeconds)")
	return cmd
}
