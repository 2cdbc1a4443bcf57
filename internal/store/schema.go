// internal/store/schema.go
package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"bms-dashboard/internal/model"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		email VARCHAR(100) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'guest',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id BIGSERIAL PRIMARY KEY,
		device_id VARCHAR(50) NOT NULL UNIQUE,
		name VARCHAR(100) NOT NULL,
		protocol VARCHAR(20) NOT NULL,
		ip VARCHAR(45) NOT NULL,
		port INTEGER NOT NULL,
		location VARCHAR(200) NOT NULL DEFAULT '',
		description TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS telemetry (
		id BIGSERIAL PRIMARY KEY,
		device_id BIGINT NOT NULL REFERENCES devices(id),
		metric_name VARCHAR(50) NOT NULL,
		metric_value DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_device_ts ON telemetry (device_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_metric_ts ON telemetry (metric_name, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		device_id BIGINT NOT NULL REFERENCES devices(id),
		rule_json TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		triggered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		acknowledged_by BIGINT REFERENCES users(id),
		ack_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS logs (
		id BIGSERIAL PRIMARY KEY,
		device_id BIGINT REFERENCES devices(id),
		event_type VARCHAR(50) NOT NULL,
		message TEXT NOT NULL,
		user_id BIGINT REFERENCES users(id),
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS commands (
		id BIGSERIAL PRIMARY KEY,
		device_id BIGINT NOT NULL REFERENCES devices(id),
		command_type VARCHAR(50) NOT NULL,
		payload TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		issued_by BIGINT NOT NULL REFERENCES users(id),
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables if they do not exist. The demo deliberately
// skips a migration tool; the schema is append-only.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

type seedUser struct {
	name, email, password, role string
}

var defaultUsers = []seedUser{
	{"Admin User", "admin@voltas.com", "admin123", model.RoleAdmin},
	{"Operator User", "operator@voltas.com", "operator123", model.RoleOperator},
	{"Guest User", "guest@voltas.com", "guest123", model.RoleGuest},
}

var defaultDevices = []model.Device{
	{DeviceID: "HVAC_001", Name: "Main HVAC Unit 1", Protocol: "Modbus", IP: "192.168.1.101", Port: 502, Location: "Building A - Floor 1", IsActive: true},
	{DeviceID: "HVAC_002", Name: "Main HVAC Unit 2", Protocol: "BACnet", IP: "192.168.1.102", Port: 47808, Location: "Building A - Floor 2", IsActive: true},
	{DeviceID: "HVAC_003", Name: "Conference Room AC", Protocol: "Modbus", IP: "192.168.1.103", Port: 502, Location: "Building B - Conference", IsActive: true},
	{DeviceID: "HVAC_004", Name: "Server Room Cooling", Protocol: "BACnet", IP: "192.168.1.104", Port: 47808, Location: "Building B - Server Room", IsActive: true},
	{DeviceID: "HVAC_005", Name: "Lobby Climate Control", Protocol: "Modbus", IP: "192.168.1.105", Port: 502, Location: "Building A - Lobby", IsActive: true},
}

// SeedDefaults inserts the stock users and HVAC devices when missing. Safe to
// run on every startup.
func SeedDefaults(ctx context.Context, s Store) error {
	for _, su := range defaultUsers {
		_, err := s.UserByEmail(ctx, su.email)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to check user %s: %w", su.email, err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(su.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash seed password: %w", err)
		}
		u := model.User{Name: su.name, Email: su.email, PasswordHash: string(hash), Role: su.role}
		if err := s.CreateUser(ctx, &u); err != nil {
			return err
		}
		log.Printf("Seeded user %s (%s)", su.email, su.role)
	}

	devices, err := s.AllDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) > 0 {
		return nil
	}
	for _, d := range defaultDevices {
		dev := d
		if err := s.CreateDevice(ctx, &dev); err != nil {
			return err
		}
	}
	log.Printf("Seeded %d default devices", len(defaultDevices))
	return nil
}
