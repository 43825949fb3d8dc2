// tail.go runs the pipeline: resolve targets, expand containers, assign
// colors, launch one stream per source, and aggregate until done or signaled.
package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/rightscale/kubetail/internal/config"
	"github.com/rightscale/kubetail/internal/kube"
	"github.com/rightscale/kubetail/internal/logging"
	"github.com/rightscale/kubetail/internal/resolve"
	"github.com/rightscale/kubetail/internal/stream"
)

func runTail(cmd *cobra.Command, args []string, opts *config.Options, logLevel *string) error {
	if len(args) > 0 {
		opts.PodQuery = args[0]
	}
	if opts.PodQuery == "" && opts.LabelSelector == "" {
		return fmt.Errorf("specify a pod query or a label selector (-l)")
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(*logLevel)
	if err != nil {
		return err
	}
	ctrl.SetLogger(logger)

	clients := kube.NewClients(opts.KubeConfigPath)
	if opts.Namespace == "" {
		kctx := ""
		if len(opts.Contexts) > 0 {
			kctx = opts.Contexts[0]
		}
		ns, err := clients.DefaultNamespace(kctx)
		if err != nil {
			return err
		}
		if ns == "" {
			ns = "default"
		}
		opts.Namespace = ns
	}

	return runPipeline(cmd.Context(), cmd.OutOrStdout(), opts, logger, clients, stream.KubectlCommand(opts))
}

// runPipeline drives resolution, preview, launching, and aggregation. The
// cluster collaborator and command builder are injected so tests can run the
// whole pipeline without a cluster or a kubectl binary.
func runPipeline(ctx context.Context, out io.Writer, opts *config.Options, logger logr.Logger, cluster kube.Interface, build stream.CommandBuilder) error {
	projection, err := stream.ParseProjection(opts.Projection)
	if err != nil {
		return err
	}

	matcher := &resolve.Matcher{Cluster: cluster, Log: logger}
	targets, err := matcher.Resolve(ctx, resolve.Query{
		Name:      opts.PodQuery,
		Mode:      opts.MatchMode,
		Selector:  opts.LabelSelector,
		Namespace: opts.Namespace,
		Contexts:  opts.Contexts,
	})
	if err != nil {
		return err
	}
	refs, err := resolve.Expand(ctx, cluster, targets, opts.Containers)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return fmt.Errorf("no containers to stream in %d matched pods", len(targets))
	}

	alloc := stream.NewAllocator(len(stream.Palette()), opts.SkipColors)
	assignments := stream.AssignColors(refs, alloc, opts.ColorMode)

	agg := stream.NewAggregator(out, opts.ColorMode, opts.LineBuffered, logger)
	agg.Preview(assignments)
	if opts.DryRun {
		return nil
	}

	reaper := stream.NewReaper(logger)
	defer reaper.Shutdown()
	launcher := &stream.Launcher{
		Build:      build,
		Projection: projection,
		Reaper:     reaper,
		Log:        logger,
	}

	lines := make(chan stream.Line, 64)
	var pumps sync.WaitGroup
	for _, assignment := range assignments {
		handle, err := launcher.Launch(ctx, assignment)
		if err != nil {
			return err
		}
		pumps.Add(1)
		go func(h *stream.Handle) {
			defer pumps.Done()
			_ = launcher.Pump(ctx, h, lines)
		}(handle)
	}
	go func() {
		pumps.Wait()
		close(lines)
	}()
	return agg.Run(ctx, lines)
}
