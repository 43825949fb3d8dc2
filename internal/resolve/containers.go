package resolve

import (
	"context"

	"github.com/rightscale/kubetail/internal/kube"
)

// Expand resolves the ordered set of containers to stream for each target.
//
// A non-empty explicit filter is returned verbatim for every target, without
// asking the cluster whether the named containers exist; callers that name a
// container are trusted (best-effort policy). An empty filter expands to all
// containers from the pod spec, preserving declaration order.
func Expand(ctx context.Context, cluster kube.Interface, targets []Target, filter []string) ([]ContainerRef, error) {
	var refs []ContainerRef
	for _, target := range targets {
		containers := filter
		if len(containers) == 0 {
			discovered, err := cluster.PodContainers(ctx, target.Context, target.Namespace, target.Pod)
			if err != nil {
				return nil, err
			}
			containers = discovered
		}
		for _, container := range containers {
			refs = append(refs, ContainerRef{Target: target, Container: container})
		}
	}
	return refs, nil
}
