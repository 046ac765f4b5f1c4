package flatten_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/leighmacdonald/tf-logs/internal/config"
	"github.com/leighmacdonald/tf-logs/internal/flatten"
	"github.com/leighmacdonald/tf-logs/internal/logstf"
	"github.com/leighmacdonald/tf-logs/internal/table"
	"github.com/stretchr/testify/require"
)

func loadDetail(t *testing.T, body string) *logstf.Detail {
	t.Helper()

	var detail logstf.Detail
	require.NoError(t, json.Unmarshal([]byte(body), &detail))

	return &detail
}

func loadFixture(t *testing.T) *logstf.Detail {
	t.Helper()

	body, err := os.ReadFile("testdata/match.json")
	require.NoError(t, err)

	return loadDetail(t, string(body))
}

func value(t *testing.T, row *table.Row, key string) any {
	t.Helper()

	v, found := row.Get(key)
	require.True(t, found, "missing column %s", key)

	return v
}

func TestWinner(t *testing.T) {
	cases := []struct {
		red, blue int
		want      string
	}{
		{red: 3, blue: 1, want: flatten.WinnerRed},
		{red: 2, blue: 2, want: flatten.WinnerDraw},
		{red: 0, blue: 5, want: flatten.WinnerBlue},
	}

	for _, tc := range cases {
		teams := map[string]logstf.Team{"Red": {Caps: tc.red}, "Blue": {Caps: tc.blue}}
		require.Equal(t, tc.want, flatten.Winner(teams))
	}

	require.Equal(t, flatten.WinnerDraw, flatten.Winner(nil))
	require.Equal(t, flatten.WinnerBlue, flatten.Winner(map[string]logstf.Team{"Blue": {Caps: 1}}))
}

func TestFlattenFixture(t *testing.T) {
	detail := loadFixture(t)

	rows, err := flatten.New(config.SteamRaw).Flatten(detail, flatten.Match{LogID: 3600001, Index: 41, Map: "koth_product_final"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	scout, medic := rows[0], rows[1]

	require.Equal(t, "[U:1:22202]", value(t, scout, "steam_id"))
	require.Equal(t, json.Number("15"), value(t, scout, "kills"))
	require.Equal(t, "Red", value(t, scout, "team"))
	require.Equal(t, "1.8", value(t, scout, "kapd"))

	_, hasClassStats := scout.Get("class_stats")
	require.False(t, hasClassStats)

	// Weapon comes from the first class played while the class is the last one.
	require.Equal(t, "scattergun", value(t, scout, "weapon_name"))
	require.InDelta(t, 25.0, value(t, scout, "weapon_accuracy"), 0.0001)
	require.Equal(t, "soldier", value(t, scout, "player_class"))

	require.Equal(t, json.Number("6"), value(t, scout, "scout_frags"))
	require.Equal(t, json.Number("4"), value(t, scout, "soldier_frags"))
	require.Equal(t, json.Number("2"), value(t, scout, "medic_frags"))

	// Nested medic breakdowns are merged at the top level.
	require.Equal(t, json.Number("3"), value(t, medic, "medigun"))
	require.Equal(t, json.Number("1"), value(t, medic, "kritzkrieg"))
	require.Equal(t, json.Number("12.25"), value(t, medic, "avg_time_before_using"))
	_, hasMedicStats := medic.Get("medicstats")
	require.False(t, hasMedicStats)
	_, hasUberTypes := medic.Get("ubertypes")
	require.False(t, hasUberTypes)

	require.Equal(t, "crusaders_crossbow", value(t, medic, "weapon_name"))
	require.Nil(t, value(t, medic, "weapon_accuracy"))
	require.Equal(t, "medic", value(t, medic, "player_class"))
	require.Equal(t, json.Number("1"), value(t, medic, "demoman_frags"))

	for _, row := range rows {
		require.Equal(t, "koth_product_final", value(t, row, "map"))
		require.Equal(t, int64(3600001), value(t, row, "match_id"))
		require.Equal(t, 1542, value(t, row, "match_time_seconds"))
		require.Equal(t, int64(1710000000), value(t, row, "date"))
		require.Equal(t, flatten.WinnerRed, value(t, row, "match_winner"))
		require.Equal(t, "RGL HL: Example vs Sample", value(t, row, "title"))
		require.Equal(t, 41, value(t, row, "match_index"))

		keys := row.Keys()
		require.Equal(t, []string{
			"player_class", "map", "steam_id", "match_id", "match_time_seconds",
			"date", "match_winner", "title", "match_index",
		}, keys[len(keys)-9:])
	}
}

func TestFlattenColumnOrder(t *testing.T) {
	detail := loadDetail(t, `{
		"teams": {"Red": {"caps": 1}, "Blue": {"caps": 0}},
		"length": 60,
		"players": {"[U:1:1]": {"team": "Red", "class_stats": [], "kills": 1, "ubertypes": {"medigun": 2}, "heal": 5}},
		"classkills": {"[U:1:1]": {"pyro": 1}},
		"info": {"title": "t", "date": 1}
	}`)

	rows, err := flatten.New(config.SteamRaw).Flatten(detail, flatten.Match{LogID: 1, Map: "cp_x"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []string{
		"team", "kills", "medigun", "heal", "weapon_accuracy", "weapon_name", "pyro_frags",
		"player_class", "map", "steam_id", "match_id", "match_time_seconds", "date", "match_winner",
		"title", "match_index",
	}, rows[0].Keys())

	// No class usage means no class and no weapon.
	require.Empty(t, value(t, rows[0], "player_class"))
	require.Empty(t, value(t, rows[0], "weapon_name"))
	require.Equal(t, 0, value(t, rows[0], "weapon_accuracy"))
}

func TestFlattenWeaponSelection(t *testing.T) {
	detail := loadDetail(t, `{
		"teams": {},
		"players": {
			"[U:1:1]": {"class_stats": [
				{"type": "scout", "weapon": {
					"scattergun": {"dmg": 100, "shots": 10, "hits": 5},
					"shotgun": {"dmg": 150, "shots": 0, "hits": 0}
				}},
				{"type": "demoman", "weapon": {"tf_projectile_pipe": {"dmg": 9000, "shots": 10, "hits": 10}}}
			]},
			"[U:1:2]": {"class_stats": [
				{"type": "sniper", "weapon": {
					"sniperrifle": {"dmg": 300, "shots": 8, "hits": 2},
					"smg": {"dmg": 300, "shots": 50, "hits": 25},
					"kukri": {"dmg": 0, "shots": 0, "hits": 0}
				}}
			]},
			"[U:1:3]": {"class_stats": [
				{"type": "spy", "weapon": {"knife": {"dmg": 0}}}
			]}
		},
		"info": {}
	}`)

	rows, err := flatten.New(config.SteamRaw).Flatten(detail, flatten.Match{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Later class entries are ignored, and a weapon without shots has no accuracy.
	require.Equal(t, "shotgun", value(t, rows[0], "weapon_name"))
	require.Nil(t, value(t, rows[0], "weapon_accuracy"))
	require.Equal(t, "demoman", value(t, rows[0], "player_class"))

	// Ties keep the first weapon listed.
	require.Equal(t, "sniperrifle", value(t, rows[1], "weapon_name"))
	require.InDelta(t, 25.0, value(t, rows[1], "weapon_accuracy"), 0.0001)

	// Nothing did damage.
	require.Empty(t, value(t, rows[2], "weapon_name"))
	require.Equal(t, 0, value(t, rows[2], "weapon_accuracy"))
}

func TestFlattenClassKills(t *testing.T) {
	const playerID = "76561198000000000"

	detail := loadDetail(t, fmt.Sprintf(`{
		"teams": {},
		"players": {%q: {"class_stats": []}, "76561198000000001": {"class_stats": []}},
		"classkills": {%q: {"Scout": 3, "Heavy": 1}},
		"info": {}
	}`, playerID, playerID))

	rows, err := flatten.New(config.SteamRaw).Flatten(detail, flatten.Match{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, json.Number("3"), value(t, rows[0], "Scout_frags"))
	require.Equal(t, json.Number("1"), value(t, rows[0], "Heavy_frags"))

	_, found := rows[1].Get("Scout_frags")
	require.False(t, found)
}

func TestFlattenFullMatch(t *testing.T) {
	var players []string
	for i := range 18 {
		players = append(players, fmt.Sprintf(`"[U:1:%d]": {"team": "Red", "class_stats": [{"type": "scout", "weapon": {}}], "kills": %d}`, 1000+i, i))
	}

	detail := loadDetail(t, `{
		"teams": {"Red": {"caps": 0}, "Blue": {"caps": 5}},
		"length": 1800,
		"players": {`+strings.Join(players, ",")+`},
		"info": {"title": "Eighteen", "date": 1700000000}
	}`)

	flattener := flatten.New(config.Steam64)
	match := flatten.Match{LogID: 77, Index: 5, Map: "pl_badwater_pro_v12"}

	rows, err := flattener.Flatten(detail, match)
	require.NoError(t, err)
	require.Len(t, rows, 18)

	require.Equal(t, "76561197960266728", value(t, rows[0], "steam_id"))

	for _, row := range rows {
		require.Equal(t, flatten.WinnerBlue, value(t, row, "match_winner"))
		require.Equal(t, int64(77), value(t, row, "match_id"))
		require.Equal(t, "pl_badwater_pro_v12", value(t, row, "map"))
		require.Equal(t, "Eighteen", value(t, row, "title"))
	}

	// Flattening the same document twice yields identical output.
	again, errAgain := flattener.Flatten(detail, match)
	require.NoError(t, errAgain)

	first, second := table.New(), table.New()
	first.Append(rows...)
	second.Append(again...)

	var firstCSV, secondCSV bytes.Buffer
	require.NoError(t, first.WriteCSV(&firstCSV))
	require.NoError(t, second.WriteCSV(&secondCSV))
	require.Equal(t, firstCSV.String(), secondCSV.String())

	firstJSON, errFirst := json.Marshal(rows)
	require.NoError(t, errFirst)
	secondJSON, errSecond := json.Marshal(again)
	require.NoError(t, errSecond)
	require.JSONEq(t, string(firstJSON), string(secondJSON))
}

func TestFlattenNoPlayers(t *testing.T) {
	for _, body := range []string{
		`{"teams": {}, "info": {}}`,
		`{"teams": {}, "players": {}, "info": {}}`,
		`{"teams": {}, "players": null, "info": {}}`,
	} {
		rows, err := flatten.New(config.SteamRaw).Flatten(loadDetail(t, body), flatten.Match{})
		require.NoError(t, err)
		require.Empty(t, rows)
	}
}

func TestFlattenMalformedPlayer(t *testing.T) {
	detail := loadDetail(t, `{"teams": {}, "players": {"[U:1:1]": {"class_stats": "nope"}}, "info": {}}`)

	_, err := flatten.New(config.SteamRaw).Flatten(detail, flatten.Match{})
	require.ErrorIs(t, err, flatten.ErrPlayer)
}
