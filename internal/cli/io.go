package cli

import (
	"fmt"
	"io"
)

// IO is the output side of one command run.
//
// Warnings go to errOut twice: ahead of the first stdout line and again
// when the command finishes, so a reader piping stdout through head still
// sees them. A command that warned exits 1.
type IO struct {
	out    io.Writer
	errOut io.Writer

	warnings []string
	// announced is set once the warnings were printed ahead of stdout.
	announced bool
}

// NewIO returns an IO writing to out and errOut.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn queues a warning made of the problem and the suggested action.
func (o *IO) Warn(issue, action string) {
	o.warnings = append(o.warnings, issue+": "+action)
}

// Println prints a line on stdout.
func (o *IO) Println(a ...any) {
	o.announce()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf prints formatted text on stdout.
func (o *IO) Printf(format string, a ...any) {
	o.announce()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln prints a line on stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish repeats the queued warnings and returns 1 if there were any.
// The IO is reset so the shell can reuse it for the next line.
func (o *IO) Finish() int {
	o.announce()
	o.printWarnings()

	code := 0
	if len(o.warnings) != 0 {
		code = 1
	}

	o.warnings, o.announced = nil, false

	return code
}

func (o *IO) announce() {
	if o.announced || len(o.warnings) == 0 {
		return
	}

	o.printWarnings()
	o.announced = true
}

func (o *IO) printWarnings() {
	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}
}
