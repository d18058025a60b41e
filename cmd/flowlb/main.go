package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/flowlb/common/go/logging"
	"github.com/yanet-platform/flowlb/common/go/xcmd"
	"github.com/yanet-platform/flowlb/internal/app"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// Cycles is the number of rotations rendered per service.
	Cycles int
	// Filter is the flow identity glob of rendered flows.
	Filter string
}

var rootCmd = &cobra.Command{
	Use:   "flowlb",
	Short: "Round-robin load balancer over an OpenFlow switch",
	Run: func(_ *cobra.Command, _ []string) {
		exit(runBalancer(cmd))
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every flow from the managed switch table",
	Run: func(_ *cobra.Command, _ []string) {
		exit(runClear(cmd))
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the flows the balancer would install",
	Run: func(_ *cobra.Command, _ []string) {
		exit(runRender(cmd))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.MarkPersistentFlagRequired("config")

	renderCmd.Flags().IntVarP(&cmd.Cycles, "cycles", "n", 3, "Number of rotations per service")
	renderCmd.Flags().StringVarP(&cmd.Filter, "filter", "f", "", "Only print flows whose identity matches the glob")

	rootCmd.AddCommand(clearCmd, renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func exit(err error) {
	if err == nil || xcmd.IsInterrupted(err) {
		return
	}

	fmt.Printf("ERROR: %v\n", err)
	os.Exit(1)
}

func setup(cmd Cmd) (*app.Config, *zap.SugaredLogger, error) {
	cfg, err := app.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	return cfg, log, nil
}

func runBalancer(cmd Cmd) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(cfg, app.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to initialize balancer: %w", err)
	}

	wg, ctx := errgroup.WithContext(context.Background())
	wg.Go(func() error {
		return a.Run(ctx)
	})
	wg.Go(func() error {
		return waitInterrupted(ctx, log)
	})

	return wg.Wait()
}

func runClear(cmd Cmd) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(cfg, app.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to initialize balancer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := waitInterrupted(ctx, log); xcmd.IsInterrupted(err) {
			cancel()
		}
	}()

	return a.Clear(ctx)
}

// waitInterrupted waits for a termination signal, logging it when it
// arrives.
func waitInterrupted(ctx context.Context, log *zap.SugaredLogger, signals ...os.Signal) error {
	err := xcmd.WaitInterrupted(ctx, signals...)
	if xcmd.IsInterrupted(err) {
		log.Infof("caught signal: %v", err)
	}
	return err
}

func runRender(cmd Cmd) error {
	cfg, err := app.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := app.RenderOptions{Cycles: cmd.Cycles}
	if cmd.Filter != "" {
		if opts.Filter, err = glob.Compile(cmd.Filter); err != nil {
			return fmt.Errorf("invalid filter %q: %w", cmd.Filter, err)
		}
	}

	return app.Render(cfg, opts, os.Stdout)
}
