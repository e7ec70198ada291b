package cmd

import (
	"fmt"
	"os"
	"strconv"

	"bookgate/pkg/cache"
	"bookgate/pkg/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the server's trial slice cache",
	Long: `Operate on the Redis trial slice cache shared by bookfile-server instances.
Cached trials are keyed by book and section bound and live until their TTL, so
a book whose file is replaced keeps serving the old trial until it is
invalidated here.`,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <book-id>",
	Short: "Drop every cached trial of a book",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheInvalidate,
}

var (
	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string
)

func init() {
	cacheCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", getEnvOrDefault("BOOKGATE_CACHE_REDIS_ADDRESS", "localhost:6379"), "Redis address")
	cacheCmd.PersistentFlags().StringVar(&redisPassword, "redis-password", os.Getenv("BOOKGATE_CACHE_REDIS_PASSWORD"), "Redis password")
	cacheCmd.PersistentFlags().IntVar(&redisDB, "redis-db", envInt("BOOKGATE_CACHE_REDIS_DB", 0), "Redis database")
	cacheCmd.PersistentFlags().StringVar(&redisPrefix, "redis-prefix", getEnvOrDefault("BOOKGATE_CACHE_REDIS_PREFIX", "bookgate:trial:"), "Key prefix used by the server")

	cacheCmd.AddCommand(cacheInvalidateCmd)
}

func envInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	bookID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidBookID, err)
	}

	if verbose {
		fmt.Fprintf(debugWriter, "→ redis %s db %d prefix %q\n", redisAddr, redisDB, redisPrefix)
	}

	c, err := cache.NewRedisSliceCache(cache.RedisCacheConfig{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
		Prefix:   redisPrefix,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.InvalidateBook(cmd.Context(), bookID); err != nil {
		return err
	}

	if output != "table" {
		return OutputData(map[string]interface{}{
			"book_id":     bookID.String(),
			"invalidated": true,
		})
	}
	PrintSuccess(fmt.Sprintf("Invalidated cached trials of %s", bookID))
	return nil
}
