package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/go-logr/logr"

	"github.com/rightscale/kubetail/internal/config"
)

// Aggregator merges all concurrently running streams into one output,
// emitting each line as soon as it arrives. Only per-source order is
// preserved; no cross-source ordering is attempted.
type Aggregator struct {
	Out          io.Writer
	ColorMode    string
	LineBuffered bool
	Log          logr.Logger

	palette []*color.Color
}

// NewAggregator returns an aggregator writing rendered lines to out.
func NewAggregator(out io.Writer, colorMode string, lineBuffered bool, log logr.Logger) *Aggregator {
	return &Aggregator{
		Out:          out,
		ColorMode:    colorMode,
		LineBuffered: lineBuffered,
		Log:          log,
		palette:      Palette(),
	}
}

// Preview lists every resolved (target, container) pair with its assigned
// color and the total count. It always precedes streaming so a bad match is
// visible before log volume begins; in dry-run mode it is the entire output.
func (a *Aggregator) Preview(assignments []Assignment) {
	fmt.Fprintf(a.Out, "Will tail %d logs...\n", len(assignments))
	for _, assignment := range assignments {
		fmt.Fprintln(a.Out, a.colorize(assignment.Color, assignment.Ref.Label()))
	}
}

// Run drains the fan-in channel to the output until the channel closes (all
// sources done) or the context is cancelled. With line buffering enabled the
// feed flushes after every line through a buffered writer; otherwise lines go
// straight to the sink.
func (a *Aggregator) Run(ctx context.Context, lines <-chan Line) error {
	out := a.Out
	var bw *bufio.Writer
	if a.LineBuffered {
		bw = bufio.NewWriter(a.Out)
		out = bw
		defer bw.Flush()
	}
	for {
		select {
		case <-ctx.Done():
			a.Log.V(1).Info("aggregator stopped", "reason", ctx.Err().Error())
			return nil
		case line, ok := <-lines:
			if !ok {
				a.Log.V(1).Info("all log streams drained")
				return nil
			}
			fmt.Fprintln(out, a.render(line))
			if bw != nil {
				if err := bw.Flush(); err != nil {
					return fmt.Errorf("flush merged feed: %w", err)
				}
			}
		}
	}
}

func (a *Aggregator) render(line Line) string {
	prefix := "[" + line.Label + "]"
	switch {
	case line.Color == NoColor || a.ColorMode == config.ColorOff:
		return prefix + " " + line.Text
	case a.ColorMode == config.ColorLine:
		return a.colorize(line.Color, prefix+" "+line.Text)
	default: // config.ColorPod: color only the source label
		return a.colorize(line.Color, prefix) + " " + line.Text
	}
}

func (a *Aggregator) colorize(idx int, text string) string {
	if idx == NoColor || a.ColorMode == config.ColorOff || idx < 0 || idx >= len(a.palette) {
		return text
	}
	return a.palette[idx].Sprint(text)
}
