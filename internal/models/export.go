// internal/models/export.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExportWorld is one branch in the snapshot file format consumed by the
// commentary tooling.
type ExportWorld struct {
	Name             string   `json:"name"`
	BranchID         int      `json:"branch_id"`
	Cash             float64  `json:"cash"`
	MonthlyWage      float64  `json:"monthly_wage"`
	CurrentIncome    *float64 `json:"current_income,omitempty"` // annual
	CurrentLoan      float64  `json:"current_loan"`
	FamilyStatus     string   `json:"family_status"`
	Children         int      `json:"children"`
	HealthStatus     string   `json:"health_status"`
	Employment       string   `json:"employment,omitempty"`
	TrajectoryEvents []string `json:"trajectory_events"`
}

// ExportFile 导出快照
type ExportFile struct {
	Timestamp  string        `json:"timestamp"`
	MonthLabel string        `json:"month_label,omitempty"`
	Worlds     []ExportWorld `json:"worlds"`
}

// WorldFromBranch converts a live branch to its export form.
func WorldFromBranch(b Branch) ExportWorld {
	st := b.State
	income := float64(st.MonthlyWage * 12)
	trajectory := append([]string{}, st.History...)
	return ExportWorld{
		Name:             st.Name,
		BranchID:         b.ID,
		Cash:             float64(st.Money),
		MonthlyWage:      float64(st.MonthlyWage),
		CurrentIncome:    &income,
		CurrentLoan:      float64(st.CurrentLoan),
		FamilyStatus:     strings.ToLower(string(st.MaritalStatus)),
		Children:         st.ChildCount,
		HealthStatus:     st.HealthStatus,
		Employment:       st.Employment,
		TrajectoryEvents: trajectory,
	}
}

// NewExportFile builds a snapshot file from branch views taken at now.
func NewExportFile(now time.Time, monthLabel string, branches []BranchView) ExportFile {
	out := ExportFile{
		Timestamp:  now.UTC().Format(time.RFC3339),
		MonthLabel: monthLabel,
		Worlds:     make([]ExportWorld, 0, len(branches)),
	}
	for _, b := range branches {
		out.Worlds = append(out.Worlds, WorldFromBranch(b.Branch))
	}
	return out
}

// ParseWorlds accepts either {"timestamp", "worlds": [...]} or a bare list
// of worlds. A leading UTF-8 BOM is ignored.
func ParseWorlds(data []byte) ([]ExportWorld, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var file struct {
		Worlds json.RawMessage `json:"worlds"`
	}
	if err := json.Unmarshal(data, &file); err == nil {
		if file.Worlds == nil {
			return nil, fmt.Errorf("export: object without worlds")
		}
		var worlds []ExportWorld
		if err := json.Unmarshal(file.Worlds, &worlds); err != nil {
			return nil, fmt.Errorf("export: worlds must be a list: %w", err)
		}
		return worlds, nil
	}

	var worlds []ExportWorld
	if err := json.Unmarshal(data, &worlds); err != nil {
		return nil, fmt.Errorf("export: expected object with worlds or a list: %w", err)
	}
	return worlds, nil
}
