// Package flatten turns a logs.tf match document into one table row per player.
//
// Each row holds the player's top level statistics, the medic and uber breakdowns merged in at the
// top level, the highest damage weapon of the first class played along with its accuracy, the
// kills per opponent class and finally the match context.
package flatten

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leighmacdonald/tf-logs/internal/config"
	"github.com/leighmacdonald/tf-logs/internal/encoding"
	"github.com/leighmacdonald/tf-logs/internal/logstf"
	"github.com/leighmacdonald/tf-logs/internal/table"
)

var ErrPlayer = errors.New("failed to flatten player")

const (
	WinnerRed  = "Red"
	WinnerBlue = "Blue"
	WinnerDraw = "Draw"

	keyClassStats = "class_stats"
	keyMedicStats = "medicstats"
	keyUberTypes  = "ubertypes"
)

// Match identifies the match being flattened.
type Match struct {
	LogID int64
	// Index is the running count of matches processed before this one.
	Index int
	Map   string
}

// Flattener converts match documents into rows.
type Flattener struct {
	idFormat config.SIDFormats
}

func New(idFormat config.SIDFormats) Flattener {
	return Flattener{idFormat: idFormat}
}

// Winner compares the capture counts of the two teams.
func Winner(teams map[string]logstf.Team) string {
	red, blue := teams[WinnerRed].Caps, teams[WinnerBlue].Caps

	switch {
	case red > blue:
		return WinnerRed
	case blue > red:
		return WinnerBlue
	default:
		return WinnerDraw
	}
}

// Flatten produces one row per player, in the order the players appear in the document. A
// document without players yields no rows.
func (f Flattener) Flatten(detail *logstf.Detail, match Match) ([]*table.Row, error) {
	winner := Winner(detail.Teams)
	rows := make([]*table.Row, 0, detail.Players.Len())

	for _, playerID := range detail.Players.Keys {
		player, errPlayer := encoding.Decode[encoding.Object](detail.Players.Values[playerID])
		if errPlayer != nil {
			return nil, errors.Join(fmt.Errorf("%w: %s", ErrPlayer, playerID), errPlayer)
		}

		row, errRow := f.playerRow(detail, playerID, player)
		if errRow != nil {
			return nil, errors.Join(fmt.Errorf("%w: %s", ErrPlayer, playerID), errRow)
		}

		row.Set("player_class", playerClass(row.classStats))
		row.Set("map", match.Map)
		row.Set("steam_id", f.idFormat.Format(playerID))
		row.Set("match_id", match.LogID)
		row.Set("match_time_seconds", detail.Length)
		row.Set("date", detail.Info.Date)
		row.Set("match_winner", winner)
		row.Set("title", detail.Info.Title)
		row.Set("match_index", match.Index)

		rows = append(rows, row.Row)
	}

	return rows, nil
}

type playerRow struct {
	*table.Row
	classStats []logstf.ClassStats
}

func (f Flattener) playerRow(detail *logstf.Detail, playerID string, player encoding.Object) (playerRow, error) {
	row := playerRow{Row: table.NewRow()}

	if raw, found := player.Get(keyClassStats); found {
		classStats, errClassStats := encoding.Decode[[]logstf.ClassStats](raw)
		if errClassStats != nil {
			return row, errClassStats
		}

		row.classStats = classStats
	}

	for _, key := range player.Keys {
		switch key {
		case keyClassStats:
			continue
		case keyMedicStats, keyUberTypes:
			if err := mergeChildren(row.Row, player.Values[key]); err != nil {
				return row, err
			}
		default:
			value, errValue := encoding.Value(player.Values[key])
			if errValue != nil {
				return row, errValue
			}

			row.Set(key, value)
		}
	}

	weaponName, accuracy, errWeapon := bestWeapon(row.classStats)
	if errWeapon != nil {
		return row, errWeapon
	}

	row.Set("weapon_accuracy", accuracy)
	row.Set("weapon_name", weaponName)

	if kills, found := detail.ClassKills[playerID]; found {
		for _, class := range kills.Keys {
			value, errValue := encoding.Value(kills.Values[class])
			if errValue != nil {
				return row, errValue
			}

			row.Set(class+"_frags", value)
		}
	}

	return row, nil
}

// mergeChildren copies the immediate children of a nested object onto the row. Anything that is
// not an object, such as an explicit null, contributes nothing.
func mergeChildren(row *table.Row, raw json.RawMessage) error {
	var nested encoding.Object
	if err := json.Unmarshal(raw, &nested); err != nil {
		if errors.Is(err, encoding.ErrNotObject) {
			return nil
		}

		return err
	}

	for _, key := range nested.Keys {
		value, errValue := encoding.Value(nested.Values[key])
		if errValue != nil {
			return errValue
		}

		row.Set(key, value)
	}

	return nil
}

// playerClass is the class of the last class usage entry.
func playerClass(classStats []logstf.ClassStats) string {
	var class string
	for _, stats := range classStats {
		class = stats.Type
	}

	return class
}

// bestWeapon finds the highest damage weapon of the first class usage entry only. Later entries
// are not considered. Ties keep the weapon seen first. Accuracy is hits/shots*100 for the leading
// weapon, or nil when it has no recorded shots or hits. When no weapon did any damage the name is
// empty and the accuracy 0.
func bestWeapon(classStats []logstf.ClassStats) (string, any, error) {
	var (
		name      string
		accuracy  any = 0
		maxDamage int64
	)

	if len(classStats) == 0 {
		return name, accuracy, nil
	}

	weapons := classStats[0].Weapon
	for _, weapon := range weapons.Keys {
		stats, errStats := encoding.Decode[logstf.WeaponStats](weapons.Values[weapon])
		if errStats != nil {
			return "", nil, errStats
		}

		if stats.Dmg <= maxDamage {
			continue
		}

		maxDamage = stats.Dmg
		name = weapon

		if stats.Shots != 0 && stats.Hits != 0 {
			accuracy = float64(stats.Hits) / float64(stats.Shots) * 100
		} else {
			accuracy = nil
		}
	}

	return name, accuracy, nil
}
