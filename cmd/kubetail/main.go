// main.go bootstraps kubetail: it builds the root Cobra command, wires Viper
// environment overrides, and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/rightscale/kubetail/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := config.NewOptions()
	logLevel := "info"
	cmd := &cobra.Command{
		Use:           "kubetail [QUERY]",
		Short:         "Tail logs from multiple Kubernetes pods in one color-coded feed",
		Long:          "kubetail resolves pods by name, comma-list, pattern, or label selector across one or more contexts, tails every matched container concurrently, and multiplexes the streams into a single feed with colored source labels.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(cmd, args, opts, &logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.KubeConfigPath, "kubeconfig", "", "Path to the kubeconfig file to use for cluster queries")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level for kubetail diagnostics (debug, info, warn, error)")
	opts.AddFlags(cmd)
	cmd.AddCommand(newVersionCommand())
	cmd.Example = `  # Tail every container of pods whose name contains "checkout"
  kubetail checkout --namespace prod-payments

  # Tail two deployments at once across staging and prod contexts
  kubetail api,worker --context staging,prod

  # Project the msg field out of structured logs, uncolored
  kubetail 'gateway-.*' --match-mode pattern --jq .msg --color false`
	bindViper(cmd)
	return cmd
}

func bindViper(cmd *cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("KUBETAIL")
	v.AutomaticEnv()

	cobra.OnInitialize(func() {
		for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
			if err := v.BindPFlags(fs); err != nil {
				cobra.CheckErr(err)
			}
		}
		for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				if f.Changed {
					return
				}
				if !v.IsSet(f.Name) {
					return
				}
				val := fmt.Sprintf("%v", v.Get(f.Name))
				if val != "" {
					_ = f.Value.Set(val)
				}
			})
		}
	})
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	switch {
	case apierrors.IsUnauthorized(err):
		message = fmt.Sprintf("%s\nHint: kubeconfig credentials were rejected. Run 'kubectl config view' to confirm the active user.", err)
	case apierrors.IsForbidden(err):
		message = fmt.Sprintf("%s\nHint: missing Kubernetes permissions to list or read pods.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
