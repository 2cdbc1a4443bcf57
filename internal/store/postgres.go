// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"bms-dashboard/internal/model"
)

// PostgresStore implements Store on top of database/sql + lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings the database.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle for schema bootstrap.
func (s *PostgresStore) DB() *sql.DB { return s.db }

const deviceColumns = "id, device_id, name, protocol, ip, port, location, description, is_active, created_at"

func scanDevice(row interface{ Scan(...any) error }) (model.Device, error) {
	var d model.Device
	var desc sql.NullString
	err := row.Scan(&d.ID, &d.DeviceID, &d.Name, &d.Protocol, &d.IP, &d.Port,
		&d.Location, &desc, &d.IsActive, &d.CreatedAt)
	d.Description = desc.String
	return d, err
}

func (s *PostgresStore) queryDevices(ctx context.Context, query string, args ...any) ([]model.Device, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *PostgresStore) ActiveDevices(ctx context.Context) ([]model.Device, error) {
	return s.queryDevices(ctx, "SELECT "+deviceColumns+" FROM devices WHERE is_active = TRUE ORDER BY id")
}

func (s *PostgresStore) AllDevices(ctx context.Context) ([]model.Device, error) {
	return s.queryDevices(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY id")
}

func (s *PostgresStore) DeviceByID(ctx context.Context, id int64) (*model.Device, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = $1", id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device %d: %w", id, err)
	}
	return &d, nil
}

func (s *PostgresStore) CreateDevice(ctx context.Context, d *model.Device) error {
	d.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO devices (device_id, name, protocol, ip, port, location, description, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		d.DeviceID, d.Name, d.Protocol, d.IP, d.Port, d.Location, d.Description, d.IsActive, d.CreatedAt,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDevice(ctx context.Context, d *model.Device) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET name = $1, protocol = $2, ip = $3, port = $4, location = $5,
		 description = $6, is_active = $7 WHERE id = $8`,
		d.Name, d.Protocol, d.IP, d.Port, d.Location, d.Description, d.IsActive, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update device %d: %w", d.ID, err)
	}
	return requireRow(res)
}

// DeactivateDevice flips is_active off. Devices referenced by telemetry or
// alerts are never physically removed.
func (s *PostgresStore) DeactivateDevice(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE devices SET is_active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to deactivate device %d: %w", id, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertReading(ctx context.Context, r *model.Reading) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO telemetry (device_id, metric_name, metric_value, timestamp)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		r.DeviceID, r.Metric, r.Value, r.Timestamp,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestReadings(ctx context.Context, deviceID int64, n int) ([]model.Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, metric_name, metric_value, timestamp FROM telemetry
		 WHERE device_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`, deviceID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var r model.Reading
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Metric, &r.Value, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// LastReadingTime returns nil when the device has no telemetry yet.
func (s *PostgresStore) LastReadingTime(ctx context.Context, deviceID int64) (*time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT timestamp FROM telemetry WHERE device_id = $1 ORDER BY timestamp DESC LIMIT 1",
		deviceID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last reading time: %w", err)
	}
	return &ts, nil
}

func (s *PostgresStore) OnlineDeviceCount(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT device_id) FROM telemetry WHERE timestamp >= $1", since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count online devices: %w", err)
	}
	return n, nil
}

// AverageMetric returns 0 when no rows fall inside the window.
func (s *PostgresStore) AverageMetric(ctx context.Context, metric string, since time.Time) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		"SELECT AVG(metric_value) FROM telemetry WHERE metric_name = $1 AND timestamp >= $2",
		metric, since).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average %s: %w", metric, err)
	}
	return avg.Float64, nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a *model.Alert) error {
	ruleJSON, err := json.Marshal(a.Rule)
	if err != nil {
		return fmt.Errorf("failed to marshal alert rule: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO alerts (device_id, rule_json, status, triggered_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		a.DeviceID, string(ruleJSON), a.Status, a.TriggeredAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryAlerts(ctx context.Context, query string, args ...any) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var ruleJSON string
		var ackBy sql.NullInt64
		var ackAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.DeviceID, &ruleJSON, &a.Status, &a.TriggeredAt, &ackBy, &ackAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if err := json.Unmarshal([]byte(ruleJSON), &a.Rule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert rule: %w", err)
		}
		if ackBy.Valid {
			a.AcknowledgedBy = &ackBy.Int64
		}
		if ackAt.Valid {
			t := ackAt.Time
			a.AckAt = &t
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

const alertColumns = "id, device_id, rule_json, status, triggered_at, acknowledged_by, ack_at"

func (s *PostgresStore) AllAlerts(ctx context.Context) ([]model.Alert, error) {
	return s.queryAlerts(ctx, "SELECT "+alertColumns+" FROM alerts ORDER BY triggered_at DESC")
}

func (s *PostgresStore) AlertsByStatus(ctx context.Context, status string) ([]model.Alert, error) {
	return s.queryAlerts(ctx, "SELECT "+alertColumns+" FROM alerts WHERE status = $1 ORDER BY triggered_at DESC", status)
}

func (s *PostgresStore) CountAlertsByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts WHERE status = $1", status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// AcknowledgeAlert moves an active alert to acknowledged, recording the actor.
// A missing id yields ErrNotFound; any other status yields ErrAlreadyAcknowledged.
func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id, userID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = $1, acknowledged_by = $2, ack_at = $3
		 WHERE id = $4 AND status = $5`,
		model.AlertAcknowledged, userID, at, id, model.AlertActive)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM alerts WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check alert %d: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyAcknowledged
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = $1",
		email).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	u.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertLog(ctx context.Context, e *model.LogEntry) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO logs (device_id, event_type, message, user_id, timestamp)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.DeviceID, e.EventType, e.Message, e.UserID, e.Timestamp,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentLogs(ctx context.Context, n int) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, event_type, message, user_id, timestamp FROM logs
		 ORDER BY timestamp DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		var deviceID, userID sql.NullInt64
		if err := rows.Scan(&e.ID, &deviceID, &e.EventType, &e.Message, &userID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		if deviceID.Valid {
			e.DeviceID = &deviceID.Int64
		}
		if userID.Valid {
			e.UserID = &userID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) InsertCommand(ctx context.Context, c *model.Command) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO commands (device_id, command_type, payload, status, issued_by, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.DeviceID, c.CommandType, c.Payload, c.Status, c.IssuedBy, c.Timestamp,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}
	return nil
}
