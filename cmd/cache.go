package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/presentation"
	"github.com/zjrosen/flowsync/internal/synccache"
)

var cacheOutput string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the fingerprint cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every cached path and fingerprint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := synccache.Open(cmd.Context(), cfg.Cache.Location)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		entries := store.Load(cmd.Context())
		return presentation.NewFormatter(cmd.OutOrStdout(), cacheOutput).
			FormatCacheEntries(presentation.FromEntries(entries))
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cache so the next pass resyncs every file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := synccache.Open(cmd.Context(), cfg.Cache.Location)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		previous := len(store.Load(cmd.Context()))
		if err := store.Save(cmd.Context(), synccache.Entries{}); err != nil {
			return err
		}
		log.Info(log.CatCache, "sync cache cleared", "location", cfg.Cache.Location, "removed", previous)
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entries\n", previous)
		return err
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)
	cacheShowCmd.Flags().StringVarP(&cacheOutput, "output", "o", presentation.FormatText, "output format: text or json")
}
