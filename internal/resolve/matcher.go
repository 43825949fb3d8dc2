// Package resolve turns a user query into the concrete set of log sources to
// stream: pods matched across one or more kubeconfig contexts, expanded into
// per-container units of work.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/rightscale/kubetail/internal/config"
	"github.com/rightscale/kubetail/internal/kube"
)

// ErrNoMatch is returned when a query matches no pods in any context.
var ErrNoMatch = errors.New("no pods matched")

// Target identifies a single pod whose logs may be tailed. Immutable once
// resolved.
type Target struct {
	Context   string
	Namespace string
	Pod       string
}

// ContainerRef is one streamable unit: a container within a Target.
type ContainerRef struct {
	Target    Target
	Container string
}

// Label renders the source label used in the merged feed and the preview.
func (r ContainerRef) Label() string {
	if r.Target.Context != "" {
		return fmt.Sprintf("%s %s %s", r.Target.Context, r.Target.Pod, r.Container)
	}
	return fmt.Sprintf("%s %s", r.Target.Pod, r.Container)
}

// Query describes what to match.
type Query struct {
	Name      string
	Mode      string // config.MatchSubstring or config.MatchPattern
	Selector  string // non-empty selector makes Name irrelevant
	Namespace string
	Contexts  []string // empty means the current kubeconfig context
}

// Matcher resolves queries against the cluster collaborator.
type Matcher struct {
	Cluster kube.Interface
	Log     logr.Logger
}

// Resolve returns the matching Targets across all contexts. Each context is
// queried independently; a context matching nothing is not an error, but a
// cluster-wide empty result is.
func (m *Matcher) Resolve(ctx context.Context, q Query) ([]Target, error) {
	match, err := buildMatchFunc(q)
	if err != nil {
		return nil, err
	}
	contexts := q.Contexts
	if len(contexts) == 0 {
		contexts = []string{""}
	}

	perContext := make([][]Target, len(contexts))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, kctx := range contexts {
		i, kctx := i, kctx
		eg.Go(func() error {
			names, err := m.Cluster.ListPods(egCtx, kctx, q.Namespace, q.Selector)
			if err != nil {
				return err
			}
			matched := make([]Target, 0, len(names))
			for _, name := range names {
				if !match(name) {
					continue
				}
				matched = append(matched, Target{Context: kctx, Namespace: q.Namespace, Pod: name})
			}
			m.Log.V(1).Info("resolved pods", "context", kctx, "namespace", q.Namespace, "matched", len(matched), "listed", len(names))
			perContext[i] = matched
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var targets []Target
	for _, matched := range perContext {
		targets = append(targets, matched...)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoMatch, q.displayQuery())
	}
	return targets, nil
}

func (q Query) displayQuery() string {
	if q.Selector != "" {
		return q.Selector
	}
	return q.Name
}

// buildMatchFunc compiles the query into a pod-name predicate. A non-empty
// label selector matches every listed pod (the selector already filtered the
// listing). A comma-separated name with mode not already "pattern" is
// rewritten into an alternation of the names as literal substrings.
func buildMatchFunc(q Query) (func(string) bool, error) {
	if q.Selector != "" {
		return func(string) bool { return true }, nil
	}
	name := q.Name
	mode := q.Mode
	if mode != config.MatchPattern && strings.Contains(name, ",") {
		name = synthesizeAlternation(name)
		mode = config.MatchPattern
	}
	if mode == config.MatchPattern {
		re, err := regexp.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("invalid pod pattern %q: %w", name, err)
		}
		return re.MatchString, nil
	}
	return func(pod string) bool { return strings.Contains(pod, name) }, nil
}

func synthesizeAlternation(commaList string) string {
	parts := strings.Split(commaList, ",")
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(part))
	}
	return strings.Join(quoted, "|")
}
