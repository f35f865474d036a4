package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Launcher{},
	&Weapon{},
	&Mission{},
	&LoadoutRecord{},
	&FiringDeclaration{},
	&Installation{},
	&FlightData{},
}

////////////////////////
// CATALOG MODELS
////////////////////////

// Launcher is launcher master data
type Launcher struct {
	PartNumber       string    `json:"partNumber" gorm:"primaryKey;size:64"`
	Nomenclature     string    `json:"nomenclature" gorm:"size:200"`
	ManufacturerCode string    `json:"manufacturerCode" gorm:"size:64"`
	RatedLifeHours   float64   `json:"ratedLifeHours"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (*Launcher) TableName() string {
	return "launchers"
}

// Weapon is missile master data
type Weapon struct {
	PartNumber       string    `json:"partNumber" gorm:"primaryKey;size:64"`
	Nomenclature     string    `json:"nomenclature" gorm:"size:200"`
	ManufacturerCode string    `json:"manufacturerCode" gorm:"size:64"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (*Weapon) TableName() string {
	return "weapons"
}

////////////////////////
// MISSION MODELS
////////////////////////

// Mission is one flight of an aircraft. Flight numbers are unique per aircraft.
type Mission struct {
	gorm.Model
	Aircraft     string          `json:"aircraft" gorm:"size:32;not null;uniqueIndex:idx_mission_flight"`
	FlightNumber int             `json:"flightNumber" gorm:"not null;uniqueIndex:idx_mission_flight"`
	Date         datatypes.Date  `json:"date" gorm:"not null;index:idx_mission_date"`
	Departure    *datatypes.Time `json:"departure"`
	Arrival      *datatypes.Time `json:"arrival"`
}

func (*Mission) TableName() string {
	return "missions"
}

// LoadoutRecord is the explicit equipment state of a position for one mission.
// Status holds the persisted code (VUOTO, A_BORDO, SPARATO).
type LoadoutRecord struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	MissionID  uint      `json:"missionId" gorm:"not null;uniqueIndex:idx_loadout_position"`
	Mission    Mission   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MissionID;"`
	Position   string    `json:"position" gorm:"size:4;not null;uniqueIndex:idx_loadout_position"`
	LauncherPN string    `json:"launcherPN" gorm:"size:64;index:idx_loadout_launcher"`
	MissilePN  string    `json:"missilePN" gorm:"size:64"`
	Status     string    `json:"status" gorm:"size:16;not null;default:VUOTO"`
	Version    uint      `json:"version" gorm:"not null;default:0"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (*LoadoutRecord) TableName() string {
	return "loadout_records"
}

// FiringDeclaration records a firing against a raw position code.
type FiringDeclaration struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	MissionID    uint      `json:"missionId" gorm:"not null;uniqueIndex:idx_declaration_code"`
	Mission      Mission   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MissionID;"`
	PositionCode string    `json:"positionCode" gorm:"size:32;not null;uniqueIndex:idx_declaration_code"`
	Fired        bool      `json:"fired"`
	DeclaredAt   time.Time `json:"declaredAt"`
}

func (*FiringDeclaration) TableName() string {
	return "firing_declarations"
}

// Installation is a launcher installation or missile embarkation window.
// A null RemovedAt means the part is still on board.
type Installation struct {
	ID           uint           `json:"id" gorm:"primarykey"`
	Kind         string         `json:"kind" gorm:"size:16;not null;index:idx_installation_slot"`
	Aircraft     string         `json:"aircraft" gorm:"size:32;not null;index:idx_installation_slot"`
	Position     string         `json:"position" gorm:"size:4;not null;index:idx_installation_slot"`
	PositionCode string         `json:"positionCode" gorm:"size:32"`
	PartNumber   string         `json:"partNumber" gorm:"size:64;not null;index:idx_installation_part"`
	InstalledAt  datatypes.Date `json:"installedAt" gorm:"not null"`
	RemovedAt    sql.NullTime   `json:"removedAt" gorm:"default:NULL"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func (*Installation) TableName() string {
	return "installations"
}

// FlightData holds the values recorded after a flight.
type FlightData struct {
	MissionID     uint           `json:"missionId" gorm:"primaryKey;autoIncrement:false"`
	Mission       Mission        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:MissionID;"`
	GLoadMax      float64        `json:"gLoadMax"`
	GLoadMin      float64        `json:"gLoadMin"`
	AvgAltitude   int            `json:"avgAltitude"`
	MaxSpeed      int            `json:"maxSpeed"`
	MissileStatus string         `json:"missileStatus" gorm:"size:255"`
	Notes         datatypes.JSON `json:"notes"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (*FlightData) TableName() string {
	return "flight_data"
}
