package trophyexport

import (
	"fmt"
	"io"
	"time"

	trophydomain "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/domain"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the exported players.
const SheetName = "Players"

// Header is the first row of every export.
var Header = []string{
	"Position", "Tag", "Owner", "Name", "Score", "Rank",
	"Previous Score", "Previous Rank",
	"Offense Gain", "Offense Events", "Defense Loss", "Defense Events",
	"Net", "Attack Log", "Defense Log", "Last Reset",
}

// Filename returns the download name for snap.
func Filename(snap *trophydomain.BackupSnapshot) string {
	return fmt.Sprintf("trophy-backup-%s-%s.xlsx", snap.TakenOn, snap.TakenAt.UTC().Format("150405"))
}

// WriteSnapshotXLSX writes snap as a single-sheet workbook, one row per
// player in snapshot order, followed by a metadata sheet.
func WriteSnapshotXLSX(w io.Writer, snap *trophydomain.BackupSnapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := setRow(f, SheetName, 1, toCells(Header)); err != nil {
		return err
	}
	for i, p := range snap.Players {
		row := []any{
			i + 1, string(p.Tag), string(p.OwnerID), p.DisplayName, p.CurrentScore, p.Rank,
			p.PreviousScore, p.PreviousRank,
			p.OffenseGainTotal, p.OffenseEventCount, p.DefenseLossTotal, p.DefenseEventCount,
			p.NetDelta(), p.AttackLogLength, p.DefenseLogLength, string(p.LastResetDate),
		}
		if err := setRow(f, SheetName, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet("Snapshot"); err != nil {
		return fmt.Errorf("failed to add metadata sheet: %w", err)
	}
	meta := [][]any{
		{"ID", snap.ID},
		{"Taken At", snap.TakenAt.UTC().Format(time.RFC3339)},
		{"Taken On", string(snap.TakenOn)},
		{"Players", len(snap.Players)},
	}
	for i, row := range meta {
		if err := setRow(f, "Snapshot", i+1, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []any) error {
	axis, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
