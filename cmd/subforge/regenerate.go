package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"subforge-go/internal/audio"
	"subforge-go/internal/processor"
)

func newRegenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		requestPath string
		mediaPath   string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "regenerate <items.json>",
		Short: "Proofread, retime or retranslate selected batches of existing items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(args[0])
			if err != nil {
				return err
			}
			req, err := readRequest(requestPath)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := ctx.logger()
			a, err := ctx.build(runCtx, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var src audio.Source
			if mediaPath != "" {
				if src, err = a.Decode(runCtx, mediaPath); err != nil {
					return err
				}
			}

			res, runErr := a.Processor.Regenerate(runCtx, items, req, src, processor.Hooks{Progress: progressLogger(log.Entry)})
			return finish(cmd, output, res, runErr)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "YAML file with mode, batches and comments")
	cmd.Flags().StringVarP(&mediaPath, "media", "m", "", "Source media for proofread and retime")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write items to this file instead of stdout")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}
