// color_test.go covers the cursor-based allocator and assignment rules.
package stream

import (
	"testing"

	"github.com/rightscale/kubetail/internal/config"
	"github.com/rightscale/kubetail/internal/resolve"
)

func TestAllocatorSkipsExcludedAndIsDeterministic(t *testing.T) {
	size := len(Palette())
	first := NewAllocator(size, []int{7, 8})
	second := NewAllocator(size, []int{7, 8})
	for i := 0; i < 3*size; i++ {
		a := first.Next()
		b := second.Next()
		if a == 7 || a == 8 {
			t.Fatalf("call %d returned excluded index %d", i, a)
		}
		if a != b {
			t.Fatalf("allocation diverged at call %d: %d vs %d", i, a, b)
		}
	}
}

func TestAllocatorWrapsCyclically(t *testing.T) {
	alloc := NewAllocator(3, nil)
	want := []int{0, 1, 2, 0, 1, 2}
	for i, w := range want {
		if got := alloc.Next(); got != w {
			t.Fatalf("call %d: want %d got %d", i, w, got)
		}
	}
}

func TestAllocatorIgnoresTotalExclusion(t *testing.T) {
	alloc := NewAllocator(2, []int{0, 1})
	if got := alloc.Next(); got != 0 {
		t.Fatalf("expected exclusions covering the palette to be ignored, got %d", got)
	}
}

func refsNamed(pods ...string) []resolve.ContainerRef {
	refs := make([]resolve.ContainerRef, 0, len(pods))
	for _, pod := range pods {
		refs = append(refs, resolve.ContainerRef{
			Target:    resolve.Target{Namespace: "default", Pod: pod},
			Container: "main",
		})
	}
	return refs
}

func TestAssignColorsSingleRefUsesSentinel(t *testing.T) {
	for _, mode := range []string{config.ColorPod, config.ColorLine, config.ColorOff} {
		t.Run(mode, func(t *testing.T) {
			alloc := NewAllocator(len(Palette()), nil)
			got := AssignColors(refsNamed("only"), alloc, mode)
			if len(got) != 1 {
				t.Fatalf("expected one assignment, got %d", len(got))
			}
			if got[0].Color != NoColor {
				t.Fatalf("single-source run must not be colorized, got index %d", got[0].Color)
			}
		})
	}
}

func TestAssignColorsOffModeDisablesAssignment(t *testing.T) {
	alloc := NewAllocator(len(Palette()), nil)
	for _, a := range AssignColors(refsNamed("a", "b", "c"), alloc, config.ColorOff) {
		if a.Color != NoColor {
			t.Fatalf("color mode false must use the sentinel, got %d for %s", a.Color, a.Ref.Label())
		}
	}
}

func TestAssignColorsAreDistinctWithinPalette(t *testing.T) {
	alloc := NewAllocator(len(Palette()), nil)
	assignments := AssignColors(refsNamed("a", "b", "c", "d"), alloc, config.ColorPod)
	seen := make(map[int]string, len(assignments))
	for _, a := range assignments {
		if prev, dup := seen[a.Color]; dup {
			t.Fatalf("color %d assigned to both %s and %s", a.Color, prev, a.Ref.Label())
		}
		seen[a.Color] = a.Ref.Label()
	}
}
