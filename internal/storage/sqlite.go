// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/basictheprogram/crossfire-nexxus/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// hostnameRE is the allowed shape of a hostname after trimming and lower-casing.
var hostnameRE = regexp.MustCompile(`^[a-z0-9.-]+$`)

const (
	// MinPort is the lowest port accepted for a server record.
	MinPort = 1
	// MaxPort is the highest port accepted for a server record.
	MaxPort = 65535
)

const serverColumns = `entry, hostname, port, html_comment, text_comment,
		archbase, mapbase, codebase, flags,
		num_players, in_bytes, out_bytes, uptime,
		version, sc_version, cs_version, country_code, last_update`

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// NormalizeHostname trims and lower-cases a submitted hostname.
func NormalizeHostname(hostname string) string {
	return strings.ToLower(strings.TrimSpace(hostname))
}

// validate normalizes the identity key in place and reports invalid fields.
func validate(s *models.Server) *models.ValidationError {
	var bad []string

	s.Hostname = NormalizeHostname(s.Hostname)
	if s.Hostname == "" || !hostnameRE.MatchString(s.Hostname) {
		bad = append(bad, "hostname")
	}
	if s.Port < MinPort || s.Port > MaxPort {
		bad = append(bad, "port")
	}

	if len(bad) > 0 {
		return models.NewValidationError(bad...)
	}
	return nil
}

// UpsertServer inserts a new server or fully replaces the existing record at
// the (hostname, port) key. The stored last_update is always the time of this
// call, never a client-supplied value. The insert runs first and falls back
// to an update when the unique key already exists, so concurrent heartbeats
// for the same key cannot create duplicate rows.
func (r *Repository) UpsertServer(s models.Server) (*models.Server, bool, error) {
	if verr := validate(&s); verr != nil {
		return nil, false, verr
	}

	// Stored with second precision so SQLite's textual DATETIME ordering
	// matches chronological ordering.
	s.LastUpdate = time.Now().UTC().Truncate(time.Second)

	res, err := r.db.Exec(`
		INSERT INTO servers (
			hostname, port, html_comment, text_comment,
			archbase, mapbase, codebase, flags,
			num_players, in_bytes, out_bytes, uptime,
			version, sc_version, cs_version, country_code, last_update
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hostname, port) DO NOTHING`,
		s.Hostname, s.Port, s.HTMLComment, s.TextComment,
		s.Archbase, s.Mapbase, s.Codebase, s.Flags,
		s.NumPlayers, s.InBytes, s.OutBytes, s.Uptime,
		s.Version, s.SCVersion, s.CSVersion, s.CountryCode, s.LastUpdate,
	)
	if err != nil {
		return nil, false, err
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	created := inserted == 1
	if !created {
		_, err = r.db.Exec(`
			UPDATE servers SET
				html_comment = ?, text_comment = ?,
				archbase = ?, mapbase = ?, codebase = ?, flags = ?,
				num_players = ?, in_bytes = ?, out_bytes = ?, uptime = ?,
				version = ?, sc_version = ?, cs_version = ?,
				country_code = ?, last_update = ?
			WHERE hostname = ? AND port = ?`,
			s.HTMLComment, s.TextComment,
			s.Archbase, s.Mapbase, s.Codebase, s.Flags,
			s.NumPlayers, s.InBytes, s.OutBytes, s.Uptime,
			s.Version, s.SCVersion, s.CSVersion,
			s.CountryCode, s.LastUpdate,
			s.Hostname, s.Port,
		)
		if err != nil {
			return nil, false, err
		}
	}

	if err := r.db.QueryRow(
		`SELECT entry FROM servers WHERE hostname = ? AND port = ?`,
		s.Hostname, s.Port,
	).Scan(&s.Entry); err != nil {
		return nil, false, err
	}

	return &s, created, nil
}

// GetServer retrieves a server by its entry id.
// Returns models.ErrServerNotFound when no record matches.
func (r *Repository) GetServer(entry int64) (*models.Server, error) {
	row := r.db.QueryRow(
		`SELECT `+serverColumns+` FROM servers WHERE entry = ?`, entry)

	s, err := scanServer(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrServerNotFound
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

// GetActiveServers retrieves servers updated within the staleness window,
// ordered by hostname ascending. The caller supplies the reference time so
// listings are reproducible in tests.
func (r *Repository) GetActiveServers(window time.Duration, now time.Time) ([]models.Server, error) {
	cutoff := now.Add(-window).UTC().Truncate(time.Second)

	rows, err := r.db.Query(
		`SELECT `+serverColumns+` FROM servers WHERE last_update > ? ORDER BY hostname ASC`,
		cutoff)
	if err != nil {
		return nil, err
	}

	return collectServers(rows)
}

// GetAllServers retrieves every server ordered by hostname ascending,
// with no staleness filtering.
func (r *Repository) GetAllServers() ([]models.Server, error) {
	rows, err := r.db.Query(
		`SELECT ` + serverColumns + ` FROM servers ORDER BY hostname ASC`)
	if err != nil {
		return nil, err
	}

	return collectServers(rows)
}

// IsBlacklisted reports whether any blacklist row matches the given hostname
// or IP address. Empty arguments never match the empty columns of other rows.
func (r *Repository) IsBlacklisted(hostname, ip string) (bool, error) {
	var one int
	err := r.db.QueryRow(`
		SELECT 1 FROM blacklist
		WHERE (hostname != '' AND hostname = ?)
		   OR (ip_address != '' AND ip_address = ?)
		LIMIT 1`,
		NormalizeHostname(hostname), strings.TrimSpace(ip),
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// AddBlacklistEntry inserts a blacklist row. Blacklist management belongs to
// the administrative surface; this exists for tooling and tests.
func (r *Repository) AddBlacklistEntry(hostname, ip string) error {
	_, err := r.db.Exec(
		`INSERT INTO blacklist (hostname, ip_address) VALUES (?, ?)`,
		NormalizeHostname(hostname), strings.TrimSpace(ip))
	return err
}

// DeleteStaleServers removes records whose last_update is older than the
// cutoff. Only maintenance tasks call this; request paths never delete.
func (r *Repository) DeleteStaleServers(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM servers WHERE last_update <= ?`, cutoff.UTC().Truncate(time.Second))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetLastUpdate overrides the stamped last_update of a record. Fake data
// generation and staleness tests need historical timestamps; nothing on a
// request path uses this.
func (r *Repository) SetLastUpdate(hostname string, port int, t time.Time) error {
	_, err := r.db.Exec(
		`UPDATE servers SET last_update = ? WHERE hostname = ? AND port = ?`,
		t.UTC().Truncate(time.Second), NormalizeHostname(hostname), port)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (*models.Server, error) {
	var s models.Server
	err := row.Scan(
		&s.Entry, &s.Hostname, &s.Port, &s.HTMLComment, &s.TextComment,
		&s.Archbase, &s.Mapbase, &s.Codebase, &s.Flags,
		&s.NumPlayers, &s.InBytes, &s.OutBytes, &s.Uptime,
		&s.Version, &s.SCVersion, &s.CSVersion, &s.CountryCode, &s.LastUpdate,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectServers(rows *sql.Rows) ([]models.Server, error) {
	defer func() { _ = rows.Close() }()

	var servers []models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return servers, nil
}
