package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/NeowayLabs/kmsflip/display"
	"github.com/NeowayLabs/kmsflip/internal/config"
	"github.com/NeowayLabs/kmsflip/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "list the displays kmsflip would present on",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, infoFunc)
	},
}

func infoFunc(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	p := pipeline.New(cfg, log)
	if err := p.Discover(); err != nil {
		return err
	}
	defer p.Close()

	printSet(os.Stdout, p.Set())
	return nil
}

func printSet(w io.Writer, set *display.Set) {
	active := make(map[*display.Display]bool)
	for _, d := range set.Active() {
		active[d] = true
	}
	for i := range set.Displays {
		d := &set.Displays[i]
		mark := " "
		if i == set.Primary {
			mark = "*"
		}
		state := "idle"
		if active[d] {
			state = "active"
		}
		fmt.Fprintf(w, "%s %-10s connector %-4d encoder %-4d crtc %-4d plane %-4d %4dx%-4d@%-3d %s %s\n",
			mark, d.Name, d.ConnectorID, d.EncoderID, d.CrtcID, d.PlaneID,
			d.Width(), d.Height(), d.Mode.Vrefresh, d.Format, state)
	}
}
