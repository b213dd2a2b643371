// Package fake provides utilities for generating random registry data for testing and development purposes.
package fake

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/basictheprogram/crossfire-nexxus/internal/models"
	"github.com/basictheprogram/crossfire-nexxus/internal/storage"
	"github.com/rs/zerolog/log"
)

// GenerateData populates the storage with a specified number of randomized
// server records spread over the last 30 days, so both the active and the
// full listings have something to show during development.
func GenerateData(store *storage.Repository, count int) {
	domains := []string{"metalforge.org", "cat2.net", "dragonisle.io", "crossfire.example.org"}
	archbases := []string{"Standard", "Extended"}
	mapbases := []string{"Standard", "Bigworld", "Smallworld"}
	codebases := []string{"Standard", "Custom"}
	flags := []string{"", "P", "PD", "D"}
	versions := []string{"1.70.0", "1.71.0", "1.75.0", "1.75.1-rc1"}
	comments := []string{
		"Public server, all welcome",
		"PvP enabled, hard rules",
		"Slow machine, be patient",
		"Fresh wipe every month",
	}

	for i := 0; i < count; i++ {
		hostname := fmt.Sprintf("srv%02d.%s", rand.Intn(100), domains[rand.Intn(len(domains))])
		port := 13327 + rand.Intn(10)

		record := models.Server{
			Hostname:    hostname,
			Port:        port,
			TextComment: comments[rand.Intn(len(comments))],
			HTMLComment: comments[rand.Intn(len(comments))],
			Archbase:    archbases[rand.Intn(len(archbases))],
			Mapbase:     mapbases[rand.Intn(len(mapbases))],
			Codebase:    codebases[rand.Intn(len(codebases))],
			Flags:       flags[rand.Intn(len(flags))],
			NumPlayers:  int64(rand.Intn(30)),
			InBytes:     int64(rand.Intn(1 << 24)),
			OutBytes:    int64(rand.Intn(1 << 26)),
			Uptime:      int64(rand.Intn(60 * 60 * 24 * 14)),
			Version:     versions[rand.Intn(len(versions))],
			SCVersion:   "1027",
			CSVersion:   "1023",
		}

		if _, _, err := store.UpsertServer(record); err != nil {
			log.Warn().Err(err).Str("hostname", hostname).Msg("Failed to generate fake server")
			continue
		}

		// Age most records so staleness filtering has something to hide.
		if rand.Float32() < 0.7 {
			age := time.Duration(rand.Intn(30*24)) * time.Hour
			if err := store.SetLastUpdate(hostname, port, time.Now().UTC().Add(-age)); err != nil {
				log.Warn().Err(err).Str("hostname", hostname).Msg("Failed to age fake server")
			}
		}
	}
}
