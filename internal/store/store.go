// internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"bms-dashboard/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyAcknowledged is returned when an alert is acknowledged twice.
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
)

// Store is the persistence boundary shared by the simulation loop and the
// query/service layer. Individual inserts are independent; no multi-statement
// transactions are required.
type Store interface {
	ActiveDevices(ctx context.Context) ([]model.Device, error)
	AllDevices(ctx context.Context) ([]model.Device, error)
	DeviceByID(ctx context.Context, id int64) (*model.Device, error)
	CreateDevice(ctx context.Context, d *model.Device) error
	UpdateDevice(ctx context.Context, d *model.Device) error
	DeactivateDevice(ctx context.Context, id int64) error

	InsertReading(ctx context.Context, r *model.Reading) error
	LatestReadings(ctx context.Context, deviceID int64, n int) ([]model.Reading, error)
	LastReadingTime(ctx context.Context, deviceID int64) (*time.Time, error)
	OnlineDeviceCount(ctx context.Context, since time.Time) (int, error)
	AverageMetric(ctx context.Context, metric string, since time.Time) (float64, error)

	InsertAlert(ctx context.Context, a *model.Alert) error
	AllAlerts(ctx context.Context) ([]model.Alert, error)
	AlertsByStatus(ctx context.Context, status string) ([]model.Alert, error)
	CountAlertsByStatus(ctx context.Context, status string) (int, error)
	AcknowledgeAlert(ctx context.Context, id, userID int64, at time.Time) error

	UserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error

	InsertLog(ctx context.Context, e *model.LogEntry) error
	RecentLogs(ctx context.Context, n int) ([]model.LogEntry, error)

	InsertCommand(ctx context.Context, c *model.Command) error
}
