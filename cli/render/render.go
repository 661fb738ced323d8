// Package render provides centralized output rendering for the foundry CLI.
//
// Format selection rules per CONTRACT_CLI.md:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format flag always overrides defaults
//   - Invalid formats are errors
//
// Session reports get a dedicated sectioned table; everything else renders
// through a small reflection path covering structs and slices of structs.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/pithecene-io/foundry/cli/reader"
	"github.com/pithecene-io/foundry/cli/tui"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

// Supported formats per CONTRACT_CLI.md.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context.
// Applies format selection rules per CONTRACT_CLI.md.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	formatStr := c.String("format")
	format, err := ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	// Apply default format based on TTY detection
	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     os.Stdout,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI initiates TUI mode for the given view type.
// Per CONTRACT_CLI.md, TUI is opt-in only and read-only only.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	return enc.Encode(data)
}

func (r *Renderer) renderTable(data any) error {
	// Session reports get the dedicated sectioned layout.
	switch rep := data.(type) {
	case *reader.SessionReport:
		return r.renderSessionReport(rep)
	case reader.SessionReport:
		return r.renderSessionReport(&rep)
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice {
		return r.renderSliceTable(v)
	}
	return r.renderStructTable(data)
}

// renderSessionReport prints the sectioned plain-text view of a recorded
// session: header fields, then artifact, action, preview and error tables.
func (r *Renderer) renderSessionReport(rep *reader.SessionReport) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "session_id:\t%s\n", rep.SessionID)
	fmt.Fprintf(w, "contract_version:\t%s\n", rep.ContractVersion)
	fmt.Fprintf(w, "events:\t%d\n", rep.EventCount)
	if rep.FirstTs != "" {
		fmt.Fprintf(w, "first_ts:\t%s\n", rep.FirstTs)
		fmt.Fprintf(w, "last_ts:\t%s\n", rep.LastTs)
	}
	fmt.Fprintf(w, "terminal_bytes:\t%d\n", rep.TerminalBytes)

	if len(rep.Artifacts) > 0 {
		fmt.Fprintf(w, "\nartifacts\t(%d)\n", len(rep.Artifacts))
		for _, a := range rep.Artifacts {
			state := "open"
			if a.Closed {
				state = "closed"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%d actions\n", a.ID, a.Title, state, a.Actions)
		}
	}

	if len(rep.Actions) > 0 {
		fmt.Fprintf(w, "\nactions\t(%d)\n", len(rep.Actions))
		for _, a := range rep.Actions {
			target := a.FilePath
			if target == "" {
				target = a.Kind
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", a.ID, a.Kind, target, a.Status)
		}
	}

	if len(rep.Previews) > 0 {
		fmt.Fprintf(w, "\npreviews\t(%d)\n", len(rep.Previews))
		for _, p := range rep.Previews {
			kind := "dev"
			if p.Static {
				kind = "static"
			}
			fmt.Fprintf(w, "  %s\t%s\tport %d\n", kind, p.URL, p.Port)
		}
	}

	if len(rep.Errors) > 0 {
		fmt.Fprintf(w, "\nerrors\t(%d)\n", len(rep.Errors))
		for _, e := range rep.Errors {
			fmt.Fprintf(w, "  %s\t%s\n", e.Kind, e.Message)
			if e.Hint != "" {
				fmt.Fprintf(w, "  \thint: %s\n", e.Hint)
			}
		}
	}

	return nil
}

func (r *Renderer) renderSliceTable(v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	headers := structHeaders(v.Index(0))
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for i := 0; i < v.Len(); i++ {
		fmt.Fprintln(w, strings.Join(structRow(v.Index(i)), "\t"))
	}
	return nil
}

func (r *Renderer) renderStructTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		fmt.Fprintf(w, "%v\n", data)
		return nil
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fmt.Fprintf(w, "%s:\t%s\n", fieldName(t.Field(i)), formatValue(v.Field(i)))
	}
	return nil
}

func structHeaders(v reflect.Value) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return []string{"value"}
	}
	t := v.Type()
	headers := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		headers = append(headers, fieldName(t.Field(i)))
	}
	return headers
}

func structRow(v reflect.Value) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return []string{formatValue(v)}
	}
	values := make([]string, 0, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		values = append(values, formatValue(v.Field(i)))
	}
	return values
}

// fieldName prefers the json tag name over the lowercased Go name.
func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		parts := strings.Split(tag, ",")
		if parts[0] != "" && parts[0] != "-" {
			return parts[0]
		}
	}
	return strings.ToLower(f.Name)
}

// formatValue renders one cell. Nested collections collapse to counts so
// rows stay single-line.
func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
