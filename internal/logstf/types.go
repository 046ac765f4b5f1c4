package logstf

import (
	"github.com/leighmacdonald/tf-logs/internal/encoding"
)

// LogSummary is a single search result from /api/v1/log.
type LogSummary struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Map     string `json:"map"`
	Date    int64  `json:"date"`
	Views   int    `json:"views"`
	Players int    `json:"players"`
}

// LogsResponse is the search endpoint response envelope.
type LogsResponse struct {
	Success bool         `json:"success"`
	Results int          `json:"results"`
	Total   int          `json:"total"`
	Logs    []LogSummary `json:"logs"`
}

// Team holds the per team totals of a match.
type Team struct {
	Score     int `json:"score"`
	Kills     int `json:"kills"`
	Deaths    int `json:"deaths"`
	Dmg       int `json:"dmg"`
	Charges   int `json:"charges"`
	Drops     int `json:"drops"`
	FirstCaps int `json:"firstcaps"`
	Caps      int `json:"caps"`
}

type Info struct {
	Map          string `json:"map"`
	Title        string `json:"title"`
	Date         int64  `json:"date"`
	Supplemental bool   `json:"supplemental"`
	TotalLength  int    `json:"total_length"`
}

// Detail is the full match document served by /json/{id}. Player and kill maps are kept as
// ordered objects; their contents vary between log versions and are flattened dynamically.
type Detail struct {
	Version    int                        `json:"version"`
	Teams      map[string]Team            `json:"teams"`
	Length     int                        `json:"length"`
	Players    encoding.Object            `json:"players"`
	ClassKills map[string]encoding.Object `json:"classkills"`
	Info       Info                       `json:"info"`
}

// ClassStats is one class usage entry of a player.
type ClassStats struct {
	Type      string          `json:"type"`
	Kills     int             `json:"kills"`
	Assists   int             `json:"assists"`
	Deaths    int             `json:"deaths"`
	Dmg       int64           `json:"dmg"`
	TotalTime int             `json:"total_time"`
	Weapon    encoding.Object `json:"weapon"`
}

// WeaponStats is the per weapon breakdown inside a class usage entry.
type WeaponStats struct {
	Kills  int     `json:"kills"`
	Dmg    int64   `json:"dmg"`
	AvgDmg float64 `json:"avg_dmg"`
	Shots  int64   `json:"shots"`
	Hits   int64   `json:"hits"`
}
