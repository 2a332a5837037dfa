package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"picdrop/internal/config"
	"picdrop/internal/logging"
	"picdrop/internal/queue"
	"picdrop/internal/scan"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var nameFlag string
	var hostFlag string
	var templateFlag string

	cmd := &cobra.Command{
		Use:   "add FOLDER",
		Short: "Queue a gallery folder for upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve folder: %w", err)
			}
			info, err := os.Stat(folder)
			if err != nil {
				return fmt.Errorf("stat folder: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", folder)
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				manager := queue.NewManager(store, nil)

				host := hostFlag
				if host == "" {
					host = cfg.Upload.Host
				}
				item, err := manager.Add(cmd.Context(), folder, host)
				if err != nil {
					return err
				}
				if nameFlag != "" {
					item.Name = nameFlag
				}
				if templateFlag != "" {
					item.TemplateName = templateFlag
				}
				if nameFlag != "" || templateFlag != "" {
					if err := manager.Save(cmd.Context(), item); err != nil {
						return err
					}
				}

				scanner := scan.NewScanner(manager, cfg.Upload.AutoQueue, logging.NewNop())
				if err := scanner.Scan(cmd.Context(), item); err != nil {
					return err
				}
				if item.Status == queue.StatusFailed {
					return fmt.Errorf("gallery rejected: %s", item.ErrorMessage)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (#%d): %d images, status %s\n",
					item.Name, item.ID, item.TotalImages, item.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&nameFlag, "name", "", "Gallery display name (defaults to the folder name)")
	cmd.Flags().StringVar(&hostFlag, "host", "", "Image host to upload to")
	cmd.Flags().StringVar(&templateFlag, "template", "", "Output template for the gallery")

	return cmd
}
