package trophyservice

import (
	"strings"
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
)

func projectLeaderboard(players []trophydomain.Player, q LeaderboardQuery, defaultSize int, now time.Time) *LeaderboardPage {
	size := q.PageSize
	if size < 1 {
		size = defaultSize
	}
	needle := strings.ToLower(strings.TrimSpace(q.NameContains))

	filtered := make([]trophydomain.Player, 0, len(players))
	for _, p := range players {
		if p.CurrentScore < q.MinScore {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.DisplayName), needle) {
			continue
		}
		filtered = append(filtered, p)
	}

	totalPages := (len(filtered) + size - 1) / size
	if totalPages == 0 {
		totalPages = 1
	}
	page := min(max(q.Page, 1), totalPages)

	start := (page - 1) * size
	end := min(start+size, len(filtered))

	entries := make([]LeaderboardEntry, 0, end-start)
	for i := start; i < end; i++ {
		entries = append(entries, LeaderboardEntry{Position: i + 1, Player: filtered[i]})
	}

	return &LeaderboardPage{
		Entries:      entries,
		Page:         page,
		PageSize:     size,
		TotalPages:   totalPages,
		TotalPlayers: len(filtered),
		GeneratedAt:  now,
	}
}
