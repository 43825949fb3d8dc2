// Package stream launches one log-fetch child process per resolved container
// and multiplexes their output into a single color-coded feed.
package stream

import (
	"github.com/fatih/color"

	"github.com/rightscale/kubetail/internal/config"
	"github.com/rightscale/kubetail/internal/resolve"
)

// NoColor marks a source rendered without color. Single-source runs and
// --color=false use it for every assignment.
const NoColor = -1

// Palette returns the color rotation used for source labels.
func Palette() []*color.Color {
	return []*color.Color{
		color.New(color.Bold, color.FgHiCyan),
		color.New(color.Bold, color.FgHiMagenta),
		color.New(color.Bold, color.FgHiGreen),
		color.New(color.Bold, color.FgHiYellow),
		color.New(color.Bold, color.FgHiBlue),
		color.New(color.Bold, color.FgHiRed),
		color.New(color.FgCyan),
		color.New(color.FgMagenta),
		color.New(color.FgGreen),
		color.New(color.FgYellow),
		color.New(color.FgBlue),
	}
}

// Allocator hands out palette indices with a monotonically advancing cursor,
// skipping excluded indices. It is pure and order-dependent: the same
// exclusion set and the same sequence of Next calls always produce the same
// sequence of indices. It is used sequentially during the launch phase and is
// not safe for concurrent use.
type Allocator struct {
	cursor int
	size   int
	skip   map[int]struct{}
}

// NewAllocator returns an allocator over a palette of the given size. Indices
// in excluded are never returned, unless the exclusions cover the entire
// palette, in which case they are ignored rather than deadlocking allocation.
func NewAllocator(size int, excluded []int) *Allocator {
	skip := make(map[int]struct{}, len(excluded))
	for _, idx := range excluded {
		if idx >= 0 && idx < size {
			skip[idx] = struct{}{}
		}
	}
	if len(skip) >= size {
		skip = nil
	}
	return &Allocator{cursor: -1, size: size, skip: skip}
}

// Next advances the cursor by one, stepping over excluded indices, and
// returns the resulting palette index. The cursor wraps cyclically once the
// palette is exhausted, so colors repeat deterministically on long runs.
func (a *Allocator) Next() int {
	for {
		a.cursor = (a.cursor + 1) % a.size
		if _, excluded := a.skip[a.cursor]; !excluded {
			return a.cursor
		}
	}
}

// Assignment pairs a resolved container with its display color.
type Assignment struct {
	Ref   resolve.ContainerRef
	Color int
}

// AssignColors allocates one color per container ref in order. A run with a
// single ref is never colorized (there is nothing to disambiguate), and
// --color=false disables assignment entirely.
func AssignColors(refs []resolve.ContainerRef, alloc *Allocator, colorMode string) []Assignment {
	assignments := make([]Assignment, 0, len(refs))
	plain := len(refs) == 1 || colorMode == config.ColorOff
	for _, ref := range refs {
		idx := NoColor
		if !plain {
			idx = alloc.Next()
		}
		assignments = append(assignments, Assignment{Ref: ref, Color: idx})
	}
	return assignments
}
