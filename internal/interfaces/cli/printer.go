package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Printer writes command results as colored text or JSON
type Printer struct {
	out    io.Writer
	errOut io.Writer
	json   bool

	green  *color.Color
	yellow *color.Color
	red    *color.Color
	cyan   *color.Color
}

// NewPrinter creates a printer for the global output options
func NewPrinter(out, errOut io.Writer, opts *RootOptions) *Printer {
	p := &Printer{
		out:    out,
		errOut: errOut,
		json:   opts.Format == FormatJSON,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed, color.Bold),
		cyan:   color.New(color.FgCyan),
	}
	if opts.NoColor {
		for _, c := range []*color.Color{p.green, p.yellow, p.red, p.cyan} {
			c.DisableColor()
		}
	}
	return p
}

// JSON reports whether results are printed as JSON
func (p *Printer) JSON() bool {
	return p.json
}

// Object prints v as indented JSON
func (p *Printer) Object(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success prints a green line with a check mark
func (p *Printer) Success(format string, a ...any) {
	p.green.Fprintf(p.out, "✓ "+format+"\n", a...)
}

// Warning prints a yellow line to the error stream
func (p *Printer) Warning(format string, a ...any) {
	p.yellow.Fprintf(p.errOut, "! "+format+"\n", a...)
}

// Failure prints a red line with a cross
func (p *Printer) Failure(format string, a ...any) {
	p.red.Fprintf(p.out, "✗ "+format+"\n", a...)
}

// Field prints an aligned label and value
func (p *Printer) Field(label string, value any) {
	p.cyan.Fprintf(p.out, "  %-14s", label+":")
	fmt.Fprintf(p.out, " %v\n", value)
}

// Line prints plain text
func (p *Printer) Line(format string, a ...any) {
	fmt.Fprintf(p.out, format+"\n", a...)
}
