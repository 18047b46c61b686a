package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docsieve/docsieve/cache"
	"github.com/docsieve/docsieve/errors"
	"github.com/docsieve/docsieve/logger"
)

// CacheCmd represents the cache command group
var CacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
	Long: `Manage the response cache.

Every model response is stored keyed by backend, system text and prompt,
so repeated runs over the same documents never re-issue identical
requests.

Examples:
  docsieve cache stats -d responses.db   # Show cached response count
  docsieve cache clear -d responses.db   # Drop all cached responses`,
}

var cacheDBFlag string

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show response cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached responses",
	RunE:  runCacheClear,
}

func init() {
	CacheCmd.PersistentFlags().StringVarP(&cacheDBFlag, "database", "d", "responses.db", "Path to the response cache database")
	CacheCmd.AddCommand(cacheStatsCmd)
	CacheCmd.AddCommand(cacheClearCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	store, err := cache.Open(cacheDBFlag, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open response cache")
	}
	defer store.Close()

	count, err := store.Stats()
	if err != nil {
		return errors.Wrap(err, "failed to query response cache")
	}

	fmt.Printf("Cache database:   %s\n", cacheDBFlag)
	fmt.Printf("Cached responses: %d\n", count)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	store, err := cache.Open(cacheDBFlag, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open response cache")
	}
	defer store.Close()

	if err := store.Clear(); err != nil {
		return errors.Wrap(err, "failed to clear response cache")
	}
	fmt.Println("Response cache cleared")
	return nil
}
