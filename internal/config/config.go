// Package config defines the flag plumbing and runtime options for kubetail,
// translating Cobra/pflag values into a strongly typed struct consumed by the
// resolver and the streaming pipeline.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Match modes accepted by --match-mode.
const (
	MatchSubstring = "substring"
	MatchPattern   = "pattern"
)

// Color modes accepted by --color.
const (
	ColorPod  = "pod"
	ColorLine = "line"
	ColorOff  = "false"
)

// Options holds all CLI configuration used by the pipeline.
type Options struct {
	PodQuery       string
	MatchMode      string
	LabelSelector  string
	Containers     []string
	Contexts       []string
	Namespace      string
	Since          time.Duration
	TailLines      int64
	LineBuffered   bool
	Projection     string
	ColorMode      string
	SkipColorsRaw  string
	SkipColors     []int
	Timestamps     bool
	Previous       bool
	DryRun         bool
	KubeConfigPath string

	// PodPattern is compiled by Validate when MatchMode is "pattern".
	PodPattern *regexp.Regexp
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		MatchMode: MatchSubstring,
		Since:     10 * time.Second,
		TailLines: -1,
		ColorMode: ColorPod,
	}
}

// AddFlags binds configuration flags to the provided Cobra command.
func (o *Options) AddFlags(cmd *cobra.Command) {
	o.BindFlags(cmd.Flags())
}

// BindFlags attaches kubetail flags to an arbitrary FlagSet and returns the
// flag names for further customization.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVarP(&o.LabelSelector, "selector", "l", "", "Label selector to filter pods; takes precedence over the pod-name query")
	names = append(names, "selector")
	fs.StringArrayVarP(&o.Containers, "container", "c", nil, "Container name to stream (repeat for multiple); defaults to all containers in each matched pod")
	names = append(names, "container")
	fs.StringSliceVar(&o.Contexts, "context", nil, "Kubeconfig context to query; repeat or use comma-separated values to fan out across clusters")
	names = append(names, "context")
	fs.StringVarP(&o.Namespace, "namespace", "n", "", "Kubernetes namespace to use. Defaults to the namespace of the active kubeconfig context.")
	names = append(names, "namespace")
	fs.DurationVarP(&o.Since, "since", "s", o.Since, "Return logs newer than a relative duration like 30s, 5m, or 1h")
	names = append(names, "since")
	fs.Int64VarP(&o.TailLines, "tail", "t", o.TailLines, "Number of historic log lines to show per container, -1 for all available")
	names = append(names, "tail")
	fs.BoolVarP(&o.LineBuffered, "line-buffered", "b", false, "Flush the merged feed after every line")
	names = append(names, "line-buffered")
	fs.StringVarP(&o.MatchMode, "match-mode", "e", o.MatchMode, "How the pod query is matched: substring or pattern (regular expression)")
	names = append(names, "match-mode")
	fs.StringVar(&o.Projection, "jq", "", "Dot-path projection applied to each JSON log record (e.g. .msg); non-JSON lines are skipped")
	names = append(names, "jq")
	fs.StringVarP(&o.ColorMode, "color", "k", o.ColorMode, "What to colorize: 'pod' colors the source label, 'line' the whole line, 'false' disables color")
	names = append(names, "color")
	fs.StringVarP(&o.SkipColorsRaw, "skip-colors", "z", "", "Comma-separated palette indices to skip when assigning colors (e.g. \"7,8\")")
	names = append(names, "skip-colors")
	fs.BoolVar(&o.Timestamps, "timestamps", false, "Include timestamps on each log line")
	names = append(names, "timestamps")
	fs.BoolVarP(&o.Previous, "previous", "p", false, "Stream logs from the previous terminated container instance")
	names = append(names, "previous")
	fs.BoolVarP(&o.DryRun, "dry-run", "d", false, "Print the resolved (pod, container) pairs and exit without streaming")
	names = append(names, "dry-run")
	return names
}

// Validate ensures provided options are coherent and compiles derived inputs.
func (o *Options) Validate() error {
	switch o.MatchMode {
	case MatchSubstring:
	case MatchPattern:
		re, err := regexp.Compile(o.PodQuery)
		if err != nil {
			return fmt.Errorf("invalid pod pattern %q: %w", o.PodQuery, err)
		}
		o.PodPattern = re
	default:
		return fmt.Errorf("invalid --match-mode value %q (allowed: substring, pattern)", o.MatchMode)
	}
	switch o.ColorMode {
	case ColorPod, ColorLine, ColorOff:
	default:
		return fmt.Errorf("invalid --color value %q (allowed: pod, line, false)", o.ColorMode)
	}
	if o.Since < 0 {
		return fmt.Errorf("--since cannot be negative")
	}
	if o.TailLines < -1 {
		return fmt.Errorf("--tail cannot be less than -1")
	}
	skip, err := parseSkipColors(o.SkipColorsRaw)
	if err != nil {
		return err
	}
	o.SkipColors = skip
	for i, kctx := range o.Contexts {
		o.Contexts[i] = strings.TrimSpace(kctx)
	}
	cleaned := o.Contexts[:0]
	for _, kctx := range o.Contexts {
		if kctx != "" {
			cleaned = append(cleaned, kctx)
		}
	}
	o.Contexts = cleaned
	for i, c := range o.Containers {
		o.Containers[i] = strings.TrimSpace(c)
	}
	o.LabelSelector = strings.TrimSpace(o.LabelSelector)
	o.Projection = strings.TrimSpace(o.Projection)
	return nil
}

func parseSkipColors(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	skip := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid --skip-colors value %q: %w", part, err)
		}
		if idx < 0 {
			return nil, fmt.Errorf("invalid --skip-colors value %q: palette indices are non-negative", part)
		}
		skip = append(skip, idx)
	}
	return skip, nil
}
