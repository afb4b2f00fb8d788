package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/twistedwarden/attendance-api/internal/models"
)

// DeviceRepository maps inbound scan credentials to registered devices.
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository creates the repository.
func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// FindBySerial resolves an active device by its serial credential.
// Returns sql.ErrNoRows for unknown or deactivated devices.
func (r *DeviceRepository) FindBySerial(ctx context.Context, serial string) (*models.Device, error) {
	const query = `SELECT id, serial_number, name, active, created_at FROM devices WHERE serial_number = $1 AND active = TRUE`
	var device models.Device
	if err := r.db.GetContext(ctx, &device, query, serial); err != nil {
		return nil, err
	}
	return &device, nil
}
