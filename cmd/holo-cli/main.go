// holo-cli is the interactive management shell for the holo routing
// daemon. It connects to the daemon's northbound gRPC interface and
// provides a Junos-style candidate/commit configuration workflow.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/irino/holo-cli/pkg/client"
	"github.com/irino/holo-cli/pkg/cmdtree"
	"github.com/irino/holo-cli/pkg/logging"
	"github.com/irino/holo-cli/pkg/schema"
	"github.com/irino/holo-cli/pkg/session"
)

var (
	flagAddr          string
	flagModel         string
	flagCommitTimeout time.Duration
	flagVerbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "holo-cli",
	Short: "Interactive management CLI for the holo routing daemon",
	Long: `holo-cli connects to a running holo daemon and provides an
interactive shell with operational and configuration modes. In
configuration mode changes are staged in a candidate and applied
atomically with commit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:50053", "daemon gRPC address")
	rootCmd.Flags().StringVar(&flagModel, "model", "", "schema model file (default: embedded model)")
	rootCmd.Flags().DurationVar(&flagCommitTimeout, "commit-timeout", 60*time.Second, "commit RPC timeout")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "log at debug level")
}

func run() error {
	model, err := loadModel()
	if err != nil {
		return err
	}

	ring := logging.NewRing(512)
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	log := slog.New(logging.NewRingHandler(base, ring))

	backend, err := client.Dial(flagAddr, model)
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "holo"
	}
	username := os.Getenv("USER")
	if username == "" {
		username = "operator"
	}

	c := &ctl{
		sess:          session.New(model, backend, log),
		backend:       backend,
		model:         model,
		opTree:        cmdtree.Build(model, cmdtree.ModeOperational),
		cfgTree:       cmdtree.Build(model, cmdtree.ModeConfigure),
		ring:          ring,
		log:           log,
		hostname:      hostname,
		username:      username,
		commitTimeout: flagCommitTimeout,
	}
	return c.run()
}

func loadModel() (*schema.Model, error) {
	if flagModel == "" {
		return schema.LoadDefault()
	}
	data, err := os.ReadFile(flagModel)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	m, err := schema.Load(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", flagModel, err)
	}
	return m, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "holo-cli: %v\n", err)
		os.Exit(1)
	}
}
