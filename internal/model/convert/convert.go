package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetops/hardpoint/internal/model"
	"github.com/fleetops/hardpoint/pkg/core"
	"gorm.io/datatypes"
)

// timeToTimeOfDay converts a nullable datatypes.Time to an optional core.TimeOfDay.
func timeToTimeOfDay(t *datatypes.Time) *core.TimeOfDay {
	if t == nil {
		return nil
	}
	v := core.TimeOfDay(time.Duration(*t))
	return &v
}

// MissionToCore converts a GORM Mission to a core.Mission.
func MissionToCore(m model.Mission) core.Mission {
	return core.Mission{
		ID:           m.ID,
		Aircraft:     m.Aircraft,
		FlightNumber: m.FlightNumber,
		Date:         core.DateOnly(time.Time(m.Date)),
		Departure:    timeToTimeOfDay(m.Departure),
		Arrival:      timeToTimeOfDay(m.Arrival),
	}
}

// LoadoutRecordToCore converts a GORM LoadoutRecord to a core.LoadoutRecord.
// Unknown status codes and positions are data-integrity errors.
func LoadoutRecordToCore(r model.LoadoutRecord) (core.LoadoutRecord, error) {
	status, err := core.ParseStatus(r.Status)
	if err != nil {
		return core.LoadoutRecord{}, withRecord(err, r.MissionID, core.PositionID(r.Position))
	}
	pos := core.PositionID(r.Position)
	if !pos.Valid() {
		return core.LoadoutRecord{}, core.DataIntegrity("convert.LoadoutRecordToCore",
			fmt.Errorf("stored position %q is not canonical", r.Position)).At(r.MissionID, "")
	}
	return core.LoadoutRecord{
		MissionID:  r.MissionID,
		Position:   pos,
		LauncherPN: r.LauncherPN,
		MissilePN:  r.MissilePN,
		Status:     status,
		Version:    r.Version,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

// FiringDeclarationToCore converts a GORM FiringDeclaration to a core.FiringDeclaration.
func FiringDeclarationToCore(d model.FiringDeclaration) core.FiringDeclaration {
	return core.FiringDeclaration{
		MissionID:    d.MissionID,
		PositionCode: d.PositionCode,
		Fired:        d.Fired,
		DeclaredAt:   d.DeclaredAt,
	}
}

// InstallationToCore converts a GORM Installation to a core.InstallationWindow.
func InstallationToCore(i model.Installation) core.InstallationWindow {
	w := core.InstallationWindow{
		Kind:         core.ItemKind(i.Kind),
		Aircraft:     i.Aircraft,
		Position:     core.PositionID(i.Position),
		PositionCode: i.PositionCode,
		PartNumber:   i.PartNumber,
		InstalledAt:  core.DateOnly(time.Time(i.InstalledAt)),
	}
	if i.RemovedAt.Valid {
		removed := core.DateOnly(i.RemovedAt.Time)
		w.RemovedAt = &removed
	}
	return w
}

// FlightDataToCore converts a GORM FlightData to a core.FlightData.
func FlightDataToCore(fd model.FlightData) core.FlightData {
	var notes map[string]string
	if len(fd.Notes) > 0 {
		_ = json.Unmarshal(fd.Notes, &notes)
	}
	return core.FlightData{
		MissionID:     fd.MissionID,
		GLoadMax:      fd.GLoadMax,
		GLoadMin:      fd.GLoadMin,
		AvgAltitude:   fd.AvgAltitude,
		MaxSpeed:      fd.MaxSpeed,
		MissileStatus: fd.MissileStatus,
		Notes:         notes,
	}
}

// LauncherToCore converts a GORM Launcher to a core.LauncherInfo.
func LauncherToCore(l model.Launcher) core.LauncherInfo {
	return core.LauncherInfo{
		PartNumber:       l.PartNumber,
		Nomenclature:     l.Nomenclature,
		ManufacturerCode: l.ManufacturerCode,
		RatedLifeHours:   l.RatedLifeHours,
	}
}

// WeaponToCore converts a GORM Weapon to a core.WeaponInfo.
func WeaponToCore(w model.Weapon) core.WeaponInfo {
	return core.WeaponInfo{
		PartNumber:       w.PartNumber,
		Nomenclature:     w.Nomenclature,
		ManufacturerCode: w.ManufacturerCode,
	}
}

func withRecord(err error, missionID uint, pos core.PositionID) error {
	if e, ok := err.(*core.Error); ok {
		e.At(missionID, pos)
	}
	return err
}
