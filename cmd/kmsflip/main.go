// Command kmsflip presents frames directly on KMS outputs, without a
// display server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/NeowayLabs/kmsflip/internal/config"
	"github.com/NeowayLabs/kmsflip/internal/errors"
	"github.com/NeowayLabs/kmsflip/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:          "kmsflip",
	Short:        "kmsflip presents frames on KMS outputs",
	Long:         "kmsflip discovers the connected outputs of a DRM card and page flips rendered frames on them in sync with vertical refresh.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, presentFunc)
	},
}

var debugFlag bool

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolP(config.KeyAll, "a", false, "present on all connected outputs, the largest one is primary")
	flags.Uint32P(config.KeyConnector, "c", 0, "connector id of the primary output")
	flags.IntP(config.KeyFrames, "n", 0, "stop after that many frames (0: until interrupted)")
	flags.Int(config.KeyCard, config.ProbeDrivers, "card index under /dev/dri (-1: probe drivers)")
	flags.StringSlice(config.KeyDrivers, nil, "driver names to probe, in order")
	flags.Int(config.KeyBuffers, 2, "buffers per output")
	flags.Duration(config.KeyFlipTimeout, 0, "longest wait for a page flip completion")
	flags.String(config.KeyImage, "", "image file to present instead of a color fill")
	flags.String(config.KeyLogLevel, "info", "log level")
	flags.String(config.KeyConfig, "", "config file")
	flags.BoolVar(&debugFlag, "debug", false, "debug logging and error stacks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type commandFunc func(ctx context.Context, cfg *config.Config, log *logrus.Logger) error

// run loads the configuration and runs fn until it returns or the
// process receives SIGINT or SIGTERM. Failures exit with status 1.
func run(cmd *cobra.Command, fn commandFunc) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(cfg.Level())
	if debugFlag {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, cfg, log); err != nil {
		if stack := errors.Stack(err); debugFlag && stack != "" {
			fmt.Fprintln(os.Stderr, stack)
		}
		stop()
		log.Fatal(err)
	}
}

func presentFunc(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	frames, err := pipeline.Run(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.WithField("frames", frames).Info("done")
	return nil
}
