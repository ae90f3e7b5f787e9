package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
	renderer *RelationRenderer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) && !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
		renderer: NewRelationRenderer(useColor),
	}
}

// Handle implements Handler - prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)
	d := event.Data

	switch event.Name {
	case TableAsserted:
		return fmt.Sprintf("%s %s %s %s", latency, f.colorize("+", color.FgGreen), str(d, "table"), str(d, "fact"))

	case TableRetracted:
		return fmt.Sprintf("%s %s %s %s", latency, f.colorize("-", color.FgRed), str(d, "table"), str(d, "fact"))

	case AtomJoined, AtomNegated:
		atom := f.renderer.RenderAtom(str(d, "atom"), event.Name == AtomNegated)
		return fmt.Sprintf("%s %s: %s × %s → %s",
			latency,
			atom,
			f.colorizeCount("bindings", num(d, "input.size")),
			f.colorizeCount("facts", num(d, "scanned")),
			f.colorizeCount("bindings", num(d, "result.size")))

	case RuleEvaluated:
		return fmt.Sprintf("%s %s %s with %d atoms → %s",
			latency,
			f.colorize("===", color.FgYellow),
			str(d, "rule"),
			num(d, "atom.count"),
			f.renderer.RenderRelation("Result", strs(d, "fields"), num(d, "tuple.count")))

	case FixpointIteration:
		return fmt.Sprintf("%s Fixpoint iteration %d derived %s",
			latency,
			num(d, "iteration"),
			f.colorizeCount("facts", num(d, "derived")))

	case FixpointConverged:
		return fmt.Sprintf("%s %s Fixpoint reached after %d iterations with %s",
			latency,
			f.colorize("===", color.FgGreen),
			num(d, "iterations"),
			f.colorizeCount("facts", num(d, "derived.total")))

	case ViewEvaluated:
		if ok, _ := d["success"].(bool); !ok {
			return fmt.Sprintf("%s %s View %s failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				str(d, "view"),
				d["error"])
		}
		return fmt.Sprintf("%s View %s evaluated to %s",
			latency,
			str(d, "view"),
			f.colorizeCount("tuples", num(d, "tuple.count")))

	case ViewSkipped:
		return fmt.Sprintf("%s View %s inputs unchanged, skipped", latency, str(d, "view"))

	case ViewDiff:
		return fmt.Sprintf("%s View %s diff: %s, %s",
			latency,
			str(d, "view"),
			f.colorize(fmt.Sprintf("+%d", num(d, "added")), color.FgGreen),
			f.colorize(fmt.Sprintf("-%d", num(d, "removed")), color.FgRed))

	case ReactionEffects:
		return fmt.Sprintf("%s Reaction round %d on %s: %d effects over %s",
			latency,
			num(d, "round"),
			str(d, "view"),
			num(d, "effect.count"),
			f.colorizeCount("diffs", num(d, "diff.count")))

	case ErrorDefinition, ErrorEvaluation:
		return fmt.Sprintf("%s %s %v", latency, f.colorize("✗", color.FgRed), d["error"])
	}

	return fmt.Sprintf("%s %s %v", latency, event.Name, d)
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	// Use microseconds for sub-millisecond durations
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	// Use floating-point milliseconds to preserve precision
	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, using color based on the label type.
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)

	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "bindings":
		return color.CyanString(text)
	case "tuples", "diffs":
		return color.MagentaString(text)
	case "facts":
		return color.BlueString(text)
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stderr).Handle
}

func str(d map[string]interface{}, key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func num(d map[string]interface{}, key string) int {
	n, _ := d[key].(int)
	return n
}

func strs(d map[string]interface{}, key string) []string {
	s, _ := d[key].([]string)
	return s
}
