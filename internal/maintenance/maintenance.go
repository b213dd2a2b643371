// Package maintenance provides one-shot database cleanup tasks.
package maintenance

import (
	"time"

	"github.com/basictheprogram/crossfire-nexxus/internal/config"
	"github.com/basictheprogram/crossfire-nexxus/internal/storage"
	"github.com/rs/zerolog/log"
)

// Run checks if any maintenance flags are set and executes the corresponding task.
// Returns true if a task was executed (indicating the program should exit).
//
// Staleness normally only hides records from the active listing; pruning is
// the explicit operator action that physically removes them.
func Run(cfg *config.Config, store *storage.Repository) bool {
	if cfg.Storage.PruneStale <= 0 {
		return false
	}

	cutoff := time.Now().UTC().Add(-time.Duration(cfg.Storage.PruneStale) * time.Second)
	log.Info().Time("cutoff", cutoff).Msg("Pruning stale servers...")

	count, err := store.DeleteStaleServers(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune stale servers")
	} else {
		log.Info().Int64("deleted", count).Msg("Prune finished")
	}

	return true
}
