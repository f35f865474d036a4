package api

import (
	"time"

	"github.com/fleetops/hardpoint/internal/loadout"
	"github.com/fleetops/hardpoint/pkg/core"
)

// Mission is the wire form of core.Mission.
type Mission struct {
	ID           uint    `json:"id"`
	Aircraft     string  `json:"aircraft"`
	FlightNumber int     `json:"flightNumber"`
	Date         string  `json:"date"`
	Departure    string  `json:"departure,omitempty"`
	Arrival      string  `json:"arrival,omitempty"`
	FlightHours  float64 `json:"flightHours"`
}

// MissionView converts a mission to its wire form.
func MissionView(m core.Mission) Mission {
	v := Mission{
		ID:           m.ID,
		Aircraft:     m.Aircraft,
		FlightNumber: m.FlightNumber,
		Date:         m.Date.Format(core.DateLayout),
		FlightHours:  m.FlightHours(),
	}
	if m.Departure != nil {
		v.Departure = m.Departure.String()
	}
	if m.Arrival != nil {
		v.Arrival = m.Arrival.String()
	}
	return v
}

// Position is the wire form of a resolved position.
type Position struct {
	Position   core.PositionID    `json:"position"`
	RawCode    string             `json:"rawCode,omitempty"`
	LauncherPN string             `json:"launcherPN,omitempty"`
	MissilePN  string             `json:"missilePN,omitempty"`
	Status     core.LoadoutStatus `json:"status"`
	Source     core.LoadoutSource `json:"source"`
	Version    uint               `json:"version"`
}

// PositionView converts a resolved position to its wire form.
func PositionView(pl core.PositionLoadout) Position {
	return Position{
		Position:   pl.Position,
		RawCode:    pl.RawCode,
		LauncherPN: pl.LauncherPN,
		MissilePN:  pl.MissilePN,
		Status:     pl.Status,
		Source:     pl.Source,
		Version:    pl.Version,
	}
}

// Transition is the outcome of a loadout write.
type Transition struct {
	Outcome    string             `json:"outcome"`
	Position   core.PositionID    `json:"position"`
	LauncherPN string             `json:"launcherPN,omitempty"`
	MissilePN  string             `json:"missilePN,omitempty"`
	Status     core.LoadoutStatus `json:"status"`
	Version    uint               `json:"version"`
}

// TransitionView converts a loadout result to its wire form.
func TransitionView(res loadout.Result) Transition {
	return Transition{
		Outcome:    res.Outcome.String(),
		Position:   res.Record.Position,
		LauncherPN: res.Record.LauncherPN,
		MissilePN:  res.Record.MissilePN,
		Status:     res.Record.Status,
		Version:    res.Record.Version,
	}
}

// LauncherStatus is the wire form of a fatigue snapshot.
type LauncherStatus struct {
	PartNumber       string              `json:"partNumber"`
	Name             string              `json:"name,omitempty"`
	MissionCount     int                 `json:"missionCount"`
	FiringCount      int                 `json:"firingCount"`
	NonFiringCount   int                 `json:"nonFiringCount"`
	FlightHours      float64             `json:"flightHours"`
	RemainingLifePct float64             `json:"remainingLifePct"`
	Maintenance      core.Classification `json:"maintenance"`
	MaintenanceEN    string              `json:"maintenanceEn"`
	ComputedAt       time.Time           `json:"computedAt"`
}

// StatusView converts a fatigue snapshot to its wire form.
func StatusView(s core.LauncherStatus) LauncherStatus {
	return LauncherStatus{
		PartNumber:       s.PartNumber,
		Name:             s.Name,
		MissionCount:     s.MissionCount,
		FiringCount:      s.FiringCount,
		NonFiringCount:   s.NonFiringCount,
		FlightHours:      s.FlightHours,
		RemainingLifePct: s.RemainingLifePct,
		Maintenance:      s.Maintenance,
		MaintenanceEN:    s.Maintenance.English(),
		ComputedAt:       s.ComputedAt,
	}
}

// HistoryEntry is one mission in a launcher's history.
type HistoryEntry struct {
	MissionID    uint    `json:"missionId"`
	Date         string  `json:"date"`
	Aircraft     string  `json:"aircraft"`
	FlightHours  float64 `json:"flightHours"`
	DamageFactor float64 `json:"damageFactor"`
	Fired        bool    `json:"fired"`
}

func historyView(entries []core.MissionHistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			MissionID:    e.MissionID,
			Date:         e.Date.Format(core.DateLayout),
			Aircraft:     e.Aircraft,
			FlightHours:  e.FlightHours,
			DamageFactor: e.DamageFactor,
			Fired:        e.Fired,
		})
	}
	return out
}

// Movement is an installation window as shown in material-handling history.
type Movement struct {
	Kind         core.ItemKind   `json:"kind"`
	Action       string          `json:"action"`
	Aircraft     string          `json:"aircraft"`
	Position     core.PositionID `json:"position"`
	PositionCode string          `json:"positionCode"`
	PartNumber   string          `json:"partNumber"`
	InstalledAt  string          `json:"installedAt"`
	RemovedAt    string          `json:"removedAt,omitempty"`
}

func movementView(ws []core.InstallationWindow) []Movement {
	out := make([]Movement, 0, len(ws))
	for _, w := range ws {
		m := Movement{
			Kind:         w.Kind,
			Action:       w.Action(),
			Aircraft:     w.Aircraft,
			Position:     w.Position,
			PositionCode: w.PositionCode,
			PartNumber:   w.PartNumber,
			InstalledAt:  w.InstalledAt.Format(core.DateLayout),
		}
		if w.RemovedAt != nil {
			m.RemovedAt = w.RemovedAt.Format(core.DateLayout)
		}
		out = append(out, m)
	}
	return out
}

// FlightData is the wire form of core.FlightData.
type FlightData struct {
	GLoadMax      float64           `json:"gLoadMax"`
	GLoadMin      float64           `json:"gLoadMin"`
	AvgAltitude   int               `json:"avgAltitude"`
	MaxSpeed      int               `json:"maxSpeed"`
	MissileStatus string            `json:"missileStatus,omitempty"`
	Notes         map[string]string `json:"notes,omitempty"`
}

func flightDataView(fd core.FlightData) FlightData {
	return FlightData{
		GLoadMax:      fd.GLoadMax,
		GLoadMin:      fd.GLoadMin,
		AvgAltitude:   fd.AvgAltitude,
		MaxSpeed:      fd.MaxSpeed,
		MissileStatus: fd.MissileStatus,
		Notes:         fd.Notes,
	}
}

func (v FlightData) toCore(missionID uint) core.FlightData {
	return core.FlightData{
		MissionID:     missionID,
		GLoadMax:      v.GLoadMax,
		GLoadMin:      v.GLoadMin,
		AvgAltitude:   v.AvgAltitude,
		MaxSpeed:      v.MaxSpeed,
		MissileStatus: v.MissileStatus,
		Notes:         v.Notes,
	}
}

// Installation is a register entry posted by an import.
type Installation struct {
	Kind         core.ItemKind `json:"kind"`
	Aircraft     string        `json:"aircraft"`
	PositionCode string        `json:"positionCode"`
	PartNumber   string        `json:"partNumber"`
	InstalledAt  string        `json:"installedAt"`
	RemovedAt    string        `json:"removedAt,omitempty"`
}

// AssignBody is the payload of a position assignment.
type AssignBody struct {
	LauncherPN string `json:"launcherPN"`
	MissilePN  string `json:"missilePN,omitempty"`
	Overwrite  bool   `json:"overwrite,omitempty"`
}

// CorrectionBody is the payload of an administrative correction.
type CorrectionBody struct {
	Status core.LoadoutStatus `json:"status"`
	Reason string             `json:"reason"`
}

// ErrorBody is returned with every non-2xx response.
type ErrorBody struct {
	Error     string          `json:"error"`
	Kind      string          `json:"kind,omitempty"`
	MissionID uint            `json:"missionId,omitempty"`
	Position  core.PositionID `json:"position,omitempty"`
}
