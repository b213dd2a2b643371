package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/basictheprogram/crossfire-nexxus/internal/models"
)

type RepositorySuite struct {
	suite.Suite
	repo *Repository
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	repo, err := New(filepath.Join(s.T().TempDir(), "nexxus.db"))
	s.Require().NoError(err)
	s.repo = repo
}

func (s *RepositorySuite) TearDownTest() {
	if s.repo != nil {
		_ = s.repo.Close()
	}
}

func (s *RepositorySuite) record(hostname string, port int) models.Server {
	return models.Server{
		Hostname:    hostname,
		Port:        port,
		TextComment: "test server",
		Archbase:    "Standard",
		NumPlayers:  3,
		Version:     "1.75.0",
	}
}

func (s *RepositorySuite) TestUpsertCreatesThenUpdates() {
	stored, created, err := s.repo.UpsertServer(s.record("alpha.example.com", 27500))
	s.Require().NoError(err)
	s.True(created)
	s.NotZero(stored.Entry)
	s.Equal("alpha.example.com", stored.Hostname)

	again := s.record("alpha.example.com", 27500)
	again.NumPlayers = 10
	stored2, created2, err := s.repo.UpsertServer(again)
	s.Require().NoError(err)
	s.False(created2)
	s.Equal(stored.Entry, stored2.Entry)

	// Latest write wins in full
	got, err := s.repo.GetServer(stored.Entry)
	s.Require().NoError(err)
	s.Equal(int64(10), got.NumPlayers)

	all, err := s.repo.GetAllServers()
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *RepositorySuite) TestUpsertStampsLastUpdateServerSide() {
	rec := s.record("alpha.example.com", 27500)
	rec.LastUpdate = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

	stored, _, err := s.repo.UpsertServer(rec)
	s.Require().NoError(err)
	s.WithinDuration(time.Now().UTC(), stored.LastUpdate, 5*time.Second)
}

func (s *RepositorySuite) TestUpsertNormalizesHostname() {
	stored, _, err := s.repo.UpsertServer(s.record("  ExaMple.LOCAL ", 13327))
	s.Require().NoError(err)
	s.Equal("example.local", stored.Hostname)

	got, err := s.repo.GetServer(stored.Entry)
	s.Require().NoError(err)
	s.Equal("example.local", got.Hostname)
}

func (s *RepositorySuite) TestUpsertRejectsBadHostname() {
	_, _, err := s.repo.UpsertServer(s.record("bad host!", 13327))

	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Contains(verr.Fields, "hostname")
}

func (s *RepositorySuite) TestUpsertPortBounds() {
	for _, port := range []int{0, 65536, -1} {
		_, _, err := s.repo.UpsertServer(s.record("example.com", port))

		var verr *models.ValidationError
		s.Require().ErrorAs(err, &verr, "port %d", port)
		s.Contains(verr.Fields, "port")
	}

	for _, port := range []int{1, 65535} {
		_, created, err := s.repo.UpsertServer(s.record("example.com", port))
		s.Require().NoError(err, "port %d", port)
		s.True(created)
	}
}

func (s *RepositorySuite) TestUpsertEmptyHostnameAndPortNamesBoth() {
	_, _, err := s.repo.UpsertServer(models.Server{Hostname: "   ", Port: 0})

	var verr *models.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.ElementsMatch([]string{"hostname", "port"}, verr.Fields)
}

func (s *RepositorySuite) TestGetServerNotFound() {
	_, err := s.repo.GetServer(4242)
	s.ErrorIs(err, models.ErrServerNotFound)
}

func (s *RepositorySuite) TestActiveListingFiltersStaleRecords() {
	_, _, err := s.repo.UpsertServer(s.record("fresh.example.com", 13327))
	s.Require().NoError(err)
	_, _, err = s.repo.UpsertServer(s.record("stale.example.com", 13327))
	s.Require().NoError(err)

	now := time.Now().UTC()
	s.Require().NoError(s.repo.SetLastUpdate("stale.example.com", 13327, now.Add(-7200*time.Second)))

	active, err := s.repo.GetActiveServers(3600*time.Second, now)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("fresh.example.com", active[0].Hostname)

	all, err := s.repo.GetAllServers()
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *RepositorySuite) TestListingsOrderByHostname() {
	for _, h := range []string{"cc.example.com", "aa.example.com", "bb.example.com"} {
		_, _, err := s.repo.UpsertServer(s.record(h, 13327))
		s.Require().NoError(err)
	}

	all, err := s.repo.GetAllServers()
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("aa.example.com", all[0].Hostname)
	s.Equal("bb.example.com", all[1].Hostname)
	s.Equal("cc.example.com", all[2].Hostname)

	active, err := s.repo.GetActiveServers(3600*time.Second, time.Now().UTC())
	s.Require().NoError(err)
	s.Require().Len(active, 3)
	s.Equal("aa.example.com", active[0].Hostname)
}

func (s *RepositorySuite) TestIsBlacklisted() {
	s.Require().NoError(s.repo.AddBlacklistEntry("banned.example.com", ""))
	s.Require().NoError(s.repo.AddBlacklistEntry("", "192.168.1.100"))

	banned, err := s.repo.IsBlacklisted("banned.example.com", "")
	s.Require().NoError(err)
	s.True(banned)

	banned, err = s.repo.IsBlacklisted("", "192.168.1.100")
	s.Require().NoError(err)
	s.True(banned)

	banned, err = s.repo.IsBlacklisted("fine.example.com", "10.0.0.1")
	s.Require().NoError(err)
	s.False(banned)

	// Empty inputs must not match the empty halves of partial entries.
	banned, err = s.repo.IsBlacklisted("", "")
	s.Require().NoError(err)
	s.False(banned)
}

func (s *RepositorySuite) TestBlacklistAllowsDuplicateRows() {
	s.Require().NoError(s.repo.AddBlacklistEntry("banned.example.com", ""))
	s.Require().NoError(s.repo.AddBlacklistEntry("banned.example.com", "192.168.1.100"))

	banned, err := s.repo.IsBlacklisted("banned.example.com", "")
	s.Require().NoError(err)
	s.True(banned)
}

func (s *RepositorySuite) TestDeleteStaleServers() {
	_, _, err := s.repo.UpsertServer(s.record("old.example.com", 13327))
	s.Require().NoError(err)
	_, _, err = s.repo.UpsertServer(s.record("new.example.com", 13327))
	s.Require().NoError(err)

	now := time.Now().UTC()
	s.Require().NoError(s.repo.SetLastUpdate("old.example.com", 13327, now.Add(-48*time.Hour)))

	deleted, err := s.repo.DeleteStaleServers(now.Add(-24 * time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	all, err := s.repo.GetAllServers()
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("new.example.com", all[0].Hostname)
}
