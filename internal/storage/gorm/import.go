package gormstorage

import (
	"context"
	"time"

	"github.com/fleetops/hardpoint/internal/model"
	"github.com/fleetops/hardpoint/internal/model/convert"
	"github.com/fleetops/hardpoint/internal/storage"
	"github.com/fleetops/hardpoint/pkg/core"

	"gorm.io/gorm"
)

// EnqueueInstallations validates register rows and queues them for a batched write.
// Nothing is queued if any row is invalid.
func (b *Backend) EnqueueInstallations(ws ...core.InstallationWindow) error {
	const op = "gorm.EnqueueInstallations"
	rows := make([]model.Installation, 0, len(ws))
	for _, w := range ws {
		if err := storage.ValidateInstallation(op, w); err != nil {
			return err
		}
		rows = append(rows, convert.CoreToInstallation(w))
	}
	b.imports.Push(rows...)
	return nil
}

// Pending returns the number of queued register rows.
func (b *Backend) Pending() int {
	return b.imports.Len()
}

// Flush writes all queued register rows in one transaction. On failure the
// rows stay queued for the next flush.
func (b *Backend) Flush(ctx context.Context) error {
	_, err := b.imports.Drain(func(rows []model.Installation) (int, error) {
		err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&rows, 500).Error
		})
		if err != nil {
			return 0, err
		}
		return len(rows), nil
	})
	return storeErr("gorm.Flush", err)
}

// importWriter periodically drains the import queue into the database.
func (b *Backend) importWriter() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.ImportFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			n := b.imports.Len()
			if n == 0 {
				continue
			}
			if err := b.Flush(context.Background()); err != nil {
				b.deps.Logger.Error("Error writing register import", "rows", n, "error", err)
				continue
			}
			b.deps.Logger.Debug("Wrote register import", "rows", n)
		}
	}
}
