package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"garagewatch/internal/services/labelstudio"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync Label Studio import storages for the configured project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			client := labelstudio.NewConfiguredClient(cfg, logger)
			if client == nil {
				return errors.New("label studio sync is not configured (set label_studio.enabled, url, api_key and project_id)")
			}
			res, err := client.SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Synced %d of %d import storages\n", res.Synced, res.Storages)
			if res.Failed > 0 {
				return fmt.Errorf("%d import storage syncs failed", res.Failed)
			}
			return nil
		},
	}
}
