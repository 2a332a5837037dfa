package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"picdrop/internal/config"
	"picdrop/internal/diskspace"
	"picdrop/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue and disk status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				summary, err := store.Summary(cmd.Context())
				if err != nil {
					return err
				}

				dataFree, tempFree, tier, err := diskspace.Sample(cfg.Paths.DataDir, cfg.Paths.TempDir,
					diskspace.ThresholdsFromMB(cfg.Disk.WarningMB, cfg.Disk.CriticalMB, cfg.Disk.EmergencyMB))
				if err != nil {
					return fmt.Errorf("read free space: %w", err)
				}

				fmt.Fprintln(out, "Queue")
				fmt.Fprintln(out, renderStatusLine("total", statusInfo, fmt.Sprintf("%d", summary.Total), colorize))
				fmt.Fprintln(out, renderStatusLine("queued", statusInfo, fmt.Sprintf("%d", summary.Queued+summary.Ready+summary.Scanning), colorize))
				fmt.Fprintln(out, renderStatusLine("uploading", statusOK, fmt.Sprintf("%d", summary.Uploading), colorize))
				fmt.Fprintln(out, renderStatusLine("completed", statusOK, fmt.Sprintf("%d", summary.Completed), colorize))
				if summary.Paused+summary.Incomplete > 0 {
					fmt.Fprintln(out, renderStatusLine("needs retry", statusWarn, fmt.Sprintf("%d", summary.Paused+summary.Incomplete), colorize))
				}
				if summary.Failed > 0 {
					fmt.Fprintln(out, renderStatusLine("failed", statusError, fmt.Sprintf("%d", summary.Failed), colorize))
				}

				fmt.Fprintln(out, "Disk")
				tierKind := statusOK
				switch tier {
				case diskspace.TierWarning:
					tierKind = statusWarn
				case diskspace.TierCritical, diskspace.TierEmergency:
					tierKind = statusError
				}
				fmt.Fprintln(out, renderStatusLine("tier", tierKind, string(tier), colorize))
				fmt.Fprintln(out, renderStatusLine("data free", statusInfo, humanize.Bytes(dataFree), colorize))
				fmt.Fprintln(out, renderStatusLine("temp free", statusInfo, humanize.Bytes(tempFree), colorize))

				uploading, err := store.List(cmd.Context(), queue.StatusUploading)
				if err != nil {
					return err
				}
				if len(uploading) > 0 {
					fmt.Fprintln(out, "Active uploads")
					for _, item := range uploading {
						message := fmt.Sprintf("%s (%s, started %s)",
							item.Name, formatProgress(item), startedAge(item))
						fmt.Fprintln(out, renderStatusLine(item.Host, statusOK, message, colorize))
					}
				}
				return nil
			})
		},
	}
}

func startedAge(item *queue.Item) string {
	if item.StartedAt == nil {
		return "-"
	}
	return formatAge(*item.StartedAt)
}
