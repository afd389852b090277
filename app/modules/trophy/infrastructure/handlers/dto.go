package trophyhandlers

import (
	"time"

	trophyservice "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/application"
	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
)

type linkRequest struct {
	OwnerID string `json:"owner_id"`
	Tag     string `json:"tag"`
}

type playerResponse struct {
	OwnerID           string    `json:"owner_id"`
	Tag               string    `json:"tag"`
	DisplayName       string    `json:"display_name"`
	CurrentScore      int       `json:"current_score"`
	Rank              int       `json:"rank"`
	PreviousScore     int       `json:"previous_score"`
	PreviousRank      int       `json:"previous_rank"`
	OffenseGainTotal  int       `json:"offense_gain_total"`
	OffenseEventCount int       `json:"offense_event_count"`
	DefenseLossTotal  int       `json:"defense_loss_total"`
	DefenseEventCount int       `json:"defense_event_count"`
	AttackLogLength   int       `json:"attack_log_length"`
	DefenseLogLength  int       `json:"defense_log_length"`
	LastResetDate     string    `json:"last_reset_date"`
	UpdatedAt         time.Time `json:"updated_at,omitzero"`
}

func toPlayerResponse(p trophydomain.Player) playerResponse {
	return playerResponse{
		OwnerID:           string(p.OwnerID),
		Tag:               string(p.Tag),
		DisplayName:       p.DisplayName,
		CurrentScore:      p.CurrentScore,
		Rank:              p.Rank,
		PreviousScore:     p.PreviousScore,
		PreviousRank:      p.PreviousRank,
		OffenseGainTotal:  p.OffenseGainTotal,
		OffenseEventCount: p.OffenseEventCount,
		DefenseLossTotal:  p.DefenseLossTotal,
		DefenseEventCount: p.DefenseEventCount,
		AttackLogLength:   p.AttackLogLength,
		DefenseLogLength:  p.DefenseLogLength,
		LastResetDate:     string(p.LastResetDate),
		UpdatedAt:         p.UpdatedAt,
	}
}

type linkResponse struct {
	Player   playerResponse `json:"player"`
	Relinked bool           `json:"relinked"`
}

type unlinkResponse struct {
	Removed int64 `json:"removed"`
}

type leaderboardEntry struct {
	Position int `json:"position"`
	playerResponse
}

type leaderboardResponse struct {
	Entries      []leaderboardEntry `json:"entries"`
	Page         int                `json:"page"`
	PageSize     int                `json:"page_size"`
	TotalPages   int                `json:"total_pages"`
	TotalPlayers int                `json:"total_players"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

func toLeaderboardResponse(page *trophyservice.LeaderboardPage) leaderboardResponse {
	entries := make([]leaderboardEntry, 0, len(page.Entries))
	for _, e := range page.Entries {
		entries = append(entries, leaderboardEntry{Position: e.Position, playerResponse: toPlayerResponse(e.Player)})
	}
	return leaderboardResponse{
		Entries:      entries,
		Page:         page.Page,
		PageSize:     page.PageSize,
		TotalPages:   page.TotalPages,
		TotalPlayers: page.TotalPlayers,
		GeneratedAt:  page.GeneratedAt,
	}
}

type resetResponse struct {
	Date     string `json:"date"`
	Reset    int    `json:"reset"`
	BackupID string `json:"backup_id,omitempty"`
}

type backupSummary struct {
	ID          string    `json:"id"`
	TakenAt     time.Time `json:"taken_at"`
	TakenOn     string    `json:"taken_on"`
	PlayerCount int       `json:"player_count"`
}

type backupResponse struct {
	backupSummary
	Players []playerResponse `json:"players"`
}

func toBackupResponse(snap *trophydomain.BackupSnapshot) backupResponse {
	players := make([]playerResponse, 0, len(snap.Players))
	for _, p := range snap.Players {
		players = append(players, toPlayerResponse(p))
	}
	return backupResponse{
		backupSummary: backupSummary{
			ID:          snap.ID,
			TakenAt:     snap.TakenAt,
			TakenOn:     string(snap.TakenOn),
			PlayerCount: len(snap.Players),
		},
		Players: players,
	}
}

type restoreResponse struct {
	Restored int `json:"restored"`
}

type failureResponse struct {
	Tag   string `json:"tag"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type reconcileResponse struct {
	Trigger     string            `json:"trigger"`
	Polled      int               `json:"polled"`
	Updated     int               `json:"updated"`
	Skipped     int               `json:"skipped"`
	Failed      int               `json:"failed"`
	Failures    []failureResponse `json:"failures"`
	Adjustments map[string]int    `json:"adjustments"`
	DurationMS  int64             `json:"duration_ms"`
}

func toReconcileResponse(r *trophyservice.ReconcileReport) reconcileResponse {
	failures := make([]failureResponse, 0, len(r.Failures))
	for _, f := range r.Failures {
		failures = append(failures, failureResponse{Tag: string(f.Tag), Kind: f.Kind, Error: f.Err.Error()})
	}
	adjustments := make(map[string]int, len(r.Adjustments))
	for k, n := range r.Adjustments {
		adjustments[k.String()] = n
	}
	return reconcileResponse{
		Trigger:     r.Trigger,
		Polled:      r.Polled,
		Updated:     r.Updated,
		Skipped:     r.Skipped,
		Failed:      r.Failed(),
		Failures:    failures,
		Adjustments: adjustments,
		DurationMS:  r.Duration.Milliseconds(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
