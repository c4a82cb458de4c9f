package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"subforge-go/internal/processor"
	"subforge-go/internal/types"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate <media>",
		Short: "Transcribe and translate a media file into subtitle items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := ctx.logger()
			a, err := ctx.build(runCtx, log, true)
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := a.Decode(runCtx, args[0])
			if err != nil {
				return err
			}

			hooks := processor.Hooks{Progress: progressLogger(log.Entry)}
			if output != "" {
				hooks.Snapshot = func(items []types.SubtitleItem) {
					if err := writeResult(output, nil, items); err != nil {
						log.WithError(err).Warn("snapshot write failed")
					}
				}
			}

			res, runErr := a.Processor.Generate(runCtx, src, hooks)
			return finish(cmd, output, res, runErr)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write items to this file instead of stdout")
	return cmd
}

// finish writes whatever the run produced, prints the summary, and reports the run error.
// A partial generation still exits non-zero so scripts notice the gaps.
func finish(cmd *cobra.Command, output string, res processor.Result, runErr error) error {
	if err := writeResult(output, cmd.OutOrStdout(), res.Items); err != nil {
		return errors.Join(runErr, fmt.Errorf("write output: %w", err))
	}
	fmt.Fprintln(cmd.ErrOrStderr(), renderSummary(res))
	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), "interrupted, partial results written")
	}
	return runErr
}

func progressLogger(log *logrus.Entry) types.ProgressFunc {
	return func(u types.ProgressUpdate) {
		entry := log.WithFields(logrus.Fields{"unit": u.ID, "total": u.Total, "stage": u.Stage})
		switch u.Status {
		case types.StatusError:
			entry.WithField("error", u.Message).Warn("unit failed")
		case types.StatusCompleted:
			entry.Info("unit completed")
		default:
			entry.Debug("unit progress")
		}
	}
}
