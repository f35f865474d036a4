// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fleetops/hardpoint/internal/model"
	"github.com/fleetops/hardpoint/pkg/core"
	"gorm.io/datatypes"
)

// timeOfDayToTime converts an optional core.TimeOfDay to a nullable datatypes.Time.
func timeOfDayToTime(t *core.TimeOfDay) *datatypes.Time {
	if t == nil {
		return nil
	}
	v := datatypes.Time(time.Duration(*t))
	return &v
}

// notesToJSON converts free-form flight notes to datatypes.JSON for DB storage.
func notesToJSON(notes map[string]string) datatypes.JSON {
	if len(notes) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(notes)
	return datatypes.JSON(data)
}

// CoreToMission converts a core.Mission to a GORM model.Mission.
func CoreToMission(m core.Mission) model.Mission {
	out := model.Mission{
		Aircraft:     m.Aircraft,
		FlightNumber: m.FlightNumber,
		Date:         datatypes.Date(core.DateOnly(m.Date)),
		Departure:    timeOfDayToTime(m.Departure),
		Arrival:      timeOfDayToTime(m.Arrival),
	}
	out.ID = m.ID
	return out
}

// CoreToLoadoutRecord converts a core.LoadoutRecord to a GORM model.LoadoutRecord.
// The status is written with its persisted code.
func CoreToLoadoutRecord(r core.LoadoutRecord) model.LoadoutRecord {
	return model.LoadoutRecord{
		MissionID:  r.MissionID,
		Position:   string(r.Position),
		LauncherPN: r.LauncherPN,
		MissilePN:  r.MissilePN,
		Status:     r.Status.StoreCode(),
		Version:    r.Version,
		UpdatedAt:  r.UpdatedAt,
	}
}

// CoreToFiringDeclaration converts a core.FiringDeclaration to a GORM model.FiringDeclaration.
func CoreToFiringDeclaration(d core.FiringDeclaration) model.FiringDeclaration {
	return model.FiringDeclaration{
		MissionID:    d.MissionID,
		PositionCode: d.PositionCode,
		Fired:        d.Fired,
		DeclaredAt:   d.DeclaredAt,
	}
}

// CoreToInstallation converts a core.InstallationWindow to a GORM model.Installation.
func CoreToInstallation(w core.InstallationWindow) model.Installation {
	removed := sql.NullTime{}
	if w.RemovedAt != nil {
		removed = sql.NullTime{Time: core.DateOnly(*w.RemovedAt), Valid: true}
	}
	return model.Installation{
		Kind:         string(w.Kind),
		Aircraft:     w.Aircraft,
		Position:     string(w.Position),
		PositionCode: w.PositionCode,
		PartNumber:   w.PartNumber,
		InstalledAt:  datatypes.Date(core.DateOnly(w.InstalledAt)),
		RemovedAt:    removed,
	}
}

// CoreToFlightData converts a core.FlightData to a GORM model.FlightData.
func CoreToFlightData(fd core.FlightData) model.FlightData {
	return model.FlightData{
		MissionID:     fd.MissionID,
		GLoadMax:      fd.GLoadMax,
		GLoadMin:      fd.GLoadMin,
		AvgAltitude:   fd.AvgAltitude,
		MaxSpeed:      fd.MaxSpeed,
		MissileStatus: fd.MissileStatus,
		Notes:         notesToJSON(fd.Notes),
	}
}

// CoreToLauncher converts a core.LauncherInfo to a GORM model.Launcher.
func CoreToLauncher(l core.LauncherInfo) model.Launcher {
	return model.Launcher{
		PartNumber:       l.PartNumber,
		Nomenclature:     l.Nomenclature,
		ManufacturerCode: l.ManufacturerCode,
		RatedLifeHours:   l.RatedLifeHours,
	}
}

// CoreToWeapon converts a core.WeaponInfo to a GORM model.Weapon.
func CoreToWeapon(w core.WeaponInfo) model.Weapon {
	return model.Weapon{
		PartNumber:       w.PartNumber,
		Nomenclature:     w.Nomenclature,
		ManufacturerCode: w.ManufacturerCode,
	}
}
