package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/stevemurr/story-sync/i18n"
	"github.com/stevemurr/story-sync/report"
)

// Exit codes for CLI commands.
const (
	ExitSuccess  = 0 // Successful execution
	ExitFailure  = 1 // Any failed operation
	ExitDegraded = 3 // Feed unavailable from both server and cache
)

// ExitError carries an exit code and the message shown to the user. Err is
// the underlying error, logged but never printed.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string { return e.Message }

func (e *ExitError) Unwrap() error { return e.Err }

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// userError converts err into a localized ExitError.
func (a *app) userError(err error) error {
	a.logger.Debug("command failed", "error", err)
	return &ExitError{Code: ExitFailure, Message: i18n.Error(a.cfg.Locale, err), Err: err}
}

// userMessage is userError with an explicit message key, for failures no
// package sentinel describes.
func (a *app) userMessage(key string, err error) error {
	a.logger.Debug("command failed", "error", err)
	return &ExitError{Code: ExitFailure, Message: i18n.T(a.cfg.Locale, key), Err: err}
}

// output writes command results in the selected format.
type output struct {
	format string
	w      io.Writer
}

func newOutput(opts *RootOptions, w io.Writer) *output {
	return &output{format: opts.Format, w: w}
}

// emit writes v as JSON or YAML, or calls text for the text format.
func (o *output) emit(v any, text func(w io.Writer)) error {
	switch o.format {
	case "json":
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(o.w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		text(o.w)
		return nil
	}
}

// status emits a one-line confirmation.
func (o *output) status(ok bool, msg string) error {
	return o.emit(map[string]any{"ok": ok, "message": msg}, func(w io.Writer) {
		c := color.New(color.FgGreen)
		if !ok {
			c = color.New(color.FgRed)
		}
		c.Fprintln(w, msg)
	})
}

// reports renders a list of reports.
func (o *output) reports(title string, reports []report.Report, saved func(string) bool) error {
	if reports == nil {
		reports = []report.Report{}
	}
	return o.emit(reports, func(w io.Writer) {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetTitle(title)
		t.AppendHeader(table.Row{"ID", "Name", "Story", "Posted", "Location", ""})
		for _, r := range reports {
			mark := ""
			if saved != nil && saved(r.ID) {
				mark = "*"
			}
			t.AppendRow(table.Row{r.ID, r.Name, r.Summary(48), posted(r), location(r), mark})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
	})
}

func posted(r report.Report) string {
	created := r.Created()
	if created.IsZero() {
		return r.CreatedAt
	}
	return humanize.Time(created)
}

func location(r report.Report) string {
	if !r.HasLocation() {
		return "-"
	}
	return fmt.Sprintf("%.4f, %.4f", *r.Lat, *r.Lon)
}
