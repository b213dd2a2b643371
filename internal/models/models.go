// Package models defines the data structures used for API requests and database persistence.
package models

import "time"

// Server represents a registered game server stored in the database.
// The (hostname, port) pair is the unique identity of a server; every
// heartbeat for the same pair fully replaces the stored attributes.
type Server struct {
	LastUpdate  time.Time `json:"last_update"`
	Hostname    string    `json:"hostname"`
	HTMLComment string    `json:"html_comment"`
	TextComment string    `json:"text_comment"`
	Archbase    string    `json:"archbase"`
	Mapbase     string    `json:"mapbase"`
	Codebase    string    `json:"codebase"`
	Flags       string    `json:"flags"`
	Version     string    `json:"version"`
	SCVersion   string    `json:"sc_version"`
	CSVersion   string    `json:"cs_version"`
	CountryCode string    `json:"country_code"`
	Entry       int64     `json:"entry"`
	NumPlayers  int64     `json:"num_players"`
	InBytes     int64     `json:"in_bytes"`
	OutBytes    int64     `json:"out_bytes"`
	Uptime      int64     `json:"uptime"`
	Port        int       `json:"port"`
}

// BlacklistEntry represents a banned hostname and/or IP address.
// Either field may be empty; any row matching a request blocks it.
type BlacklistEntry struct {
	Hostname  string `json:"hostname"`
	IPAddress string `json:"ip_address"`
	Entry     int64  `json:"entry"`
}

// ServerUpdate is the payload accepted by the structured API upsert endpoint.
// Port is a pointer so a missing value can be told apart from port 0.
type ServerUpdate struct {
	Port        *int   `json:"port"`
	Hostname    string `json:"hostname"`
	HTMLComment string `json:"html_comment"`
	TextComment string `json:"text_comment"`
	Archbase    string `json:"archbase"`
	Mapbase     string `json:"mapbase"`
	Codebase    string `json:"codebase"`
	Flags       string `json:"flags"`
	Version     string `json:"version"`
	SCVersion   string `json:"sc_version"`
	CSVersion   string `json:"cs_version"`
	NumPlayers  int64  `json:"num_players"`
	InBytes     int64  `json:"in_bytes"`
	OutBytes    int64  `json:"out_bytes"`
	Uptime      int64  `json:"uptime"`
}

// Record converts the update payload into a full Server record.
// The caller must have checked that Port is present.
func (u *ServerUpdate) Record() Server {
	return Server{
		Hostname:    u.Hostname,
		Port:        *u.Port,
		HTMLComment: u.HTMLComment,
		TextComment: u.TextComment,
		Archbase:    u.Archbase,
		Mapbase:     u.Mapbase,
		Codebase:    u.Codebase,
		Flags:       u.Flags,
		NumPlayers:  u.NumPlayers,
		InBytes:     u.InBytes,
		OutBytes:    u.OutBytes,
		Uptime:      u.Uptime,
		Version:     u.Version,
		SCVersion:   u.SCVersion,
		CSVersion:   u.CSVersion,
	}
}
