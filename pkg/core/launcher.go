// pkg/core/launcher.go
package core

import "time"

// LauncherInfo is catalog master data for a launcher part number.
type LauncherInfo struct {
	PartNumber       string
	Nomenclature     string
	ManufacturerCode string
	RatedLifeHours   float64
}

// WeaponInfo is catalog master data for a missile part number.
type WeaponInfo struct {
	PartNumber       string
	Nomenclature     string
	ManufacturerCode string
}

// Classification is the maintenance urgency derived from remaining life.
type Classification string

const (
	ClassOK        Classification = "OK"
	ClassAttention Classification = "ATTENZIONE"
	ClassUrgent    Classification = "MANUTENZIONE URGENTE"
)

// English returns an English label for reports.
func (c Classification) English() string {
	switch c {
	case ClassOK:
		return "OK"
	case ClassAttention:
		return "ATTENTION"
	case ClassUrgent:
		return "URGENT MAINTENANCE"
	default:
		return string(c)
	}
}

// LauncherStatus is a derived fatigue snapshot. It is never persisted.
type LauncherStatus struct {
	PartNumber       string
	Name             string
	MissionCount     int
	FiringCount      int
	NonFiringCount   int
	FlightHours      float64
	RemainingLifePct float64
	Maintenance      Classification
	ComputedAt       time.Time
}

// MissionHistoryEntry is one mission a launcher took part in.
type MissionHistoryEntry struct {
	MissionID    uint
	Date         time.Time
	Aircraft     string
	FlightHours  float64
	DamageFactor float64
	Fired        bool
}
