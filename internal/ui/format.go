package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	apperrors "kpisync/pkg/errors"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(color string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, color)
		}
		return text
	}
}

// SupportsColor reports whether stdout is a terminal.
func SupportsColor() bool {
	return supportsColor
}

// ShowHeader displays a formatted header
func ShowHeader(w io.Writer, title string) {
	width := 50
	if len(title)+2 > width {
		width = len(title) + 2
	}
	padding := (width - len(title) - 2) / 2

	fmt.Fprintln(w, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(w, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", width-2-padding-len(title)),
	)
	fmt.Fprintln(w, "+"+strings.Repeat("-", width-2)+"+")
}

// ShowError displays an error with its code and any suggestions.
func ShowError(w io.Writer, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		fmt.Fprintf(w, "%s %s\n", ColorError("ERROR:"), err.Error())
		return
	}

	fmt.Fprintf(w, "%s %s\n", ColorError("ERROR:"), appErr.Detail())
	fmt.Fprintf(w, "  %s\n", ColorDim("code: "+string(appErr.Code)))
	for _, s := range appErr.Suggestions {
		fmt.Fprintf(w, "  %s %s\n", ColorInfo("TIP:"), s)
	}
}

// ShowSuccess displays a success message
func ShowSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorInfo("INFO:"), message)
}

// PrintKeyValue prints a key-value pair in a formatted way
func PrintKeyValue(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %-20s %s\n", ColorDim(key+":"), value)
}

// FormatDuration rounds d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
