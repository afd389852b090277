package trophydb

import (
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Player is the persisted row for a tracked tag.
type Player struct {
	bun.BaseModel `bun:"table:trophy_players,alias:tp"`

	Tag               string    `bun:"tag,pk,type:varchar(16)"`
	OwnerID           string    `bun:"owner_id,notnull"`
	DisplayName       string    `bun:"display_name,notnull"`
	CurrentScore      int       `bun:"current_score,notnull"`
	Rank              int       `bun:"rank,notnull"`
	PreviousScore     int       `bun:"previous_score,notnull"`
	PreviousRank      int       `bun:"previous_rank,notnull"`
	OffenseGainTotal  int       `bun:"offense_gain_total,notnull"`
	OffenseEventCount int       `bun:"offense_event_count,notnull"`
	DefenseLossTotal  int       `bun:"defense_loss_total,notnull"`
	DefenseEventCount int       `bun:"defense_event_count,notnull"`
	AttackLogLength   int       `bun:"attack_log_length,notnull"`
	DefenseLogLength  int       `bun:"defense_log_length,notnull"`
	LastResetDate     string    `bun:"last_reset_date,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Backup is a write-once snapshot of every player row.
type Backup struct {
	bun.BaseModel `bun:"table:trophy_backups,alias:tb"`

	ID          uuid.UUID      `bun:"id,pk,type:uuid"`
	TakenAt     time.Time      `bun:"taken_at,notnull"`
	TakenOn     string         `bun:"taken_on,notnull"`
	PlayerCount int            `bun:"player_count,notnull"`
	Players     []BackupPlayer `bun:"players,type:jsonb,notnull"`
}

// BackupPlayer is the JSON form of a player inside a snapshot.
type BackupPlayer struct {
	OwnerID           string `json:"owner_id"`
	Tag               string `json:"tag"`
	DisplayName       string `json:"display_name"`
	CurrentScore      int    `json:"current_score"`
	Rank              int    `json:"rank"`
	PreviousScore     int    `json:"previous_score"`
	PreviousRank      int    `json:"previous_rank"`
	OffenseGainTotal  int    `json:"offense_gain_total"`
	OffenseEventCount int    `json:"offense_event_count"`
	DefenseLossTotal  int    `json:"defense_loss_total"`
	DefenseEventCount int    `json:"defense_event_count"`
	AttackLogLength   int    `json:"attack_log_length"`
	DefenseLogLength  int    `json:"defense_log_length"`
	LastResetDate     string `json:"last_reset_date"`
}

func playerFromDomain(p trophydomain.Player) *Player {
	return &Player{
		Tag:               string(p.Tag),
		OwnerID:           string(p.OwnerID),
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

func (m *Player) toDomain() trophydomain.Player {
	return trophydomain.Player{
		OwnerID:           trophydomain.OwnerID(m.OwnerID),
		Tag:               trophydomain.Tag(m.Tag),
		DisplayName:       m.DisplayName,
		CurrentScore:      m.CurrentScore,
		Rank:              m.Rank,
		PreviousScore:     m.PreviousScore,
		PreviousRank:      m.PreviousRank,
		OffenseGainTotal:  m.OffenseGainTotal,
		OffenseEventCount: m.OffenseEventCount,
		DefenseLossTotal:  m.DefenseLossTotal,
		DefenseEventCount: m.DefenseEventCount,
		AttackLogLength:   m.AttackLogLength,
		DefenseLogLength:  m.DefenseLogLength,
		LastResetDate:     trophydomain.Date(m.LastResetDate),
		UpdatedAt:         m.UpdatedAt,
	}
}

func backupPlayerFromDomain(p trophydomain.Player) BackupPlayer {
	return BackupPlayer{
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
	}
}

func (b BackupPlayer) toDomain() trophydomain.Player {
	return trophydomain.Player{
		OwnerID:           trophydomain.OwnerID(b.OwnerID),
		Tag:               trophydomain.Tag(b.Tag),
		DisplayName:       b.DisplayName,
		CurrentScore:      b.CurrentScore,
		Rank:              b.Rank,
		PreviousScore:     b.PreviousScore,
		PreviousRank:      b.PreviousRank,
		OffenseGainTotal:  b.OffenseGainTotal,
		OffenseEventCount: b.OffenseEventCount,
		DefenseLossTotal:  b.DefenseLossTotal,
		DefenseEventCount: b.DefenseEventCount,
		AttackLogLength:   b.AttackLogLength,
		DefenseLogLength:  b.DefenseLogLength,
		LastResetDate:     trophydomain.Date(b.LastResetDate),
	}
}

func (b *Backup) toDomain() *trophydomain.BackupSnapshot {
	snap := &trophydomain.BackupSnapshot{
		ID:      b.ID.String(),
		TakenAt: b.TakenAt,
		TakenOn: trophydomain.Date(b.TakenOn),
		Players: make([]trophydomain.Player, len(b.Players)),
	}
	for i, p := range b.Players {
		snap.Players[i] = p.toDomain()
	}
	return snap
}

// ScheduleState records the last local date an anchored action fired.
type ScheduleState struct {
	bun.BaseModel `bun:"table:trophy_schedule_state,alias:tss"`

	Action        string    `bun:"action,pk,type:varchar(16)"`
	LastFiredDate string    `bun:"last_fired_date,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
