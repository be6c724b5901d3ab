// Package leaderboard derives ranked standings for a group. Ranking is a
// pure read-side computation: it never mutates store state and is
// recomputable from either the player totals or the raw answer log.
package leaderboard

import (
	"sort"

	"github.com/WillSoph/top-game-score/internal/group"
)

// Entry is one ranked row.
type Entry struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name"`
	Handle     string `json:"handle,omitempty"`
	TotalScore int    `json:"totalScore"`
	Rank       int    `json:"rank"`
}

// Rank orders players by total score descending, ties broken by display name
// ascending. An empty player set yields an empty ranking.
func Rank(players []group.Player) []Entry {
	entries := make([]Entry, 0, len(players))
	for _, p := range players {
		entries = append(entries, Entry{
			PlayerID:   p.ID,
			Name:       p.Name,
			Handle:     p.Handle,
			TotalScore: p.TotalScore,
		})
	}
	sortEntries(entries)
	return entries
}

// RankFromAnswers is the log-derived variant: totals are summed from the
// answer records instead of trusting the player counters. Players with no
// answers rank with zero; answers from unknown player ids surface with a
// placeholder name so the log stays fully accounted for.
func RankFromAnswers(players []group.Player, answers []group.Answer) []Entry {
	totals := TotalsFromAnswers(answers)

	known := make(map[string]bool, len(players))
	entries := make([]Entry, 0, len(players))
	for _, p := range players {
		known[p.ID] = true
		entries = append(entries, Entry{
			PlayerID:   p.ID,
			Name:       p.Name,
			Handle:     p.Handle,
			TotalScore: totals[p.ID],
		})
	}
	for playerID, total := range totals {
		if !known[playerID] {
			entries = append(entries, Entry{
				PlayerID:   playerID,
				Name:       "Player",
				TotalScore: total,
			})
		}
	}
	sortEntries(entries)
	return entries
}

// TotalsFromAnswers sums scoreAwarded per player over an answer log.
func TotalsFromAnswers(answers []group.Answer) map[string]int {
	totals := make(map[string]int)
	for _, a := range answers {
		totals[a.PlayerID] += a.ScoreAwarded
	}
	return totals
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
