package database

import (
	"context"
	"fmt"

	"github.com/fleetops/hardpoint/internal/model"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MergeStats counts the rows copied by MergeBackup, keyed by table name.
type MergeStats map[string]int

// Total returns the number of rows copied across all tables.
func (s MergeStats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// MergeBackup copies every row of a SQLite backup into dst inside one transaction.
//
// Catalog rows keep their part number keys and never overwrite existing rows.
// Missions are matched on aircraft and flight number; unmatched missions get a
// new ID and their loadout records, firing declarations and flight data follow
// the new ID. Rows that collide with existing unique keys are skipped.
func MergeBackup(ctx context.Context, src, dst *gorm.DB, log zerolog.Logger) (MergeStats, error) {
	if src == nil || dst == nil {
		return nil, fmt.Errorf("no database connection")
	}
	if err := Migrate(dst); err != nil {
		return nil, err
	}

	stats := MergeStats{}
	err := dst.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		src := src.WithContext(ctx)

		if err := copyTable[model.Launcher](src, tx, stats, nil); err != nil {
			return err
		}
		if err := copyTable[model.Weapon](src, tx, stats, nil); err != nil {
			return err
		}

		ids, err := mergeMissions(src, tx, stats)
		if err != nil {
			return err
		}

		if err := copyTable(src, tx, stats, func(r *model.LoadoutRecord) bool {
			r.ID = 0
			return remap(ids, &r.MissionID)
		}); err != nil {
			return err
		}
		if err := copyTable(src, tx, stats, func(d *model.FiringDeclaration) bool {
			d.ID = 0
			return remap(ids, &d.MissionID)
		}); err != nil {
			return err
		}
		if err := copyTable(src, tx, stats, func(fd *model.FlightData) bool {
			return remap(ids, &fd.MissionID)
		}); err != nil {
			return err
		}
		return copyTable(src, tx, stats, func(i *model.Installation) bool {
			i.ID = 0
			return true
		})
	})
	if err != nil {
		return nil, err
	}

	for table, n := range stats {
		log.Info().Str("table", table).Int("count", n).Msg("Merged backup rows")
	}
	return stats, nil
}

// mergeMissions returns the backup mission ID to destination mission ID mapping.
func mergeMissions(src, tx *gorm.DB, stats MergeStats) (map[uint]uint, error) {
	var missions []model.Mission
	if err := src.Find(&missions).Error; err != nil {
		return nil, fmt.Errorf("error reading missions: %w", err)
	}

	ids := make(map[uint]uint, len(missions))
	for _, m := range missions {
		var existing model.Mission
		err := tx.Where("aircraft = ? AND flight_number = ?", m.Aircraft, m.FlightNumber).
			Limit(1).Find(&existing).Error
		if err != nil {
			return nil, fmt.Errorf("error matching mission %d: %w", m.ID, err)
		}
		if existing.ID != 0 {
			ids[m.ID] = existing.ID
			continue
		}

		oldID := m.ID
		m.ID = 0
		if err := tx.Create(&m).Error; err != nil {
			return nil, fmt.Errorf("error copying mission %d: %w", oldID, err)
		}
		ids[oldID] = m.ID
		stats[(&model.Mission{}).TableName()]++
	}
	return ids, nil
}

type tabler interface {
	TableName() string
}

// copyTable reads all rows of M from src and inserts them into dst, skipping
// conflicts. prepare may rewrite a row or drop it by returning false.
func copyTable[M any, PM interface {
	*M
	tabler
}](src, dst *gorm.DB, stats MergeStats, prepare func(PM) bool) error {
	table := PM(new(M)).TableName()

	var rows []M
	if err := src.Find(&rows).Error; err != nil {
		return fmt.Errorf("error reading %s: %w", table, err)
	}

	keep := rows[:0]
	for i := range rows {
		if prepare == nil || prepare(PM(&rows[i])) {
			keep = append(keep, rows[i])
		}
	}
	if len(keep) == 0 {
		return nil
	}

	res := dst.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&keep)
	if res.Error != nil {
		return fmt.Errorf("error migrating %s: %w", table, res.Error)
	}
	stats[table] += int(res.RowsAffected)
	return nil
}

func remap(ids map[uint]uint, missionID *uint) bool {
	id, ok := ids[*missionID]
	if !ok {
		return false
	}
	*missionID = id
	return true
}
