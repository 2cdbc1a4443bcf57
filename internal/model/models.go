// internal/model/models.go
package model

import "time"

// Metric names emitted by the synthesizer. Every reading row carries one of these.
const (
	MetricTemperature = "temperature"
	MetricCO2         = "co2_ppm"
	MetricHumidity    = "humidity"
	MetricPower       = "power_kw"
	MetricStatus      = "status"
)

// Alert lifecycle. Alerts only move forward: active -> acknowledged.
// Resolved exists for future use; nothing sets it automatically.
const (
	AlertActive       = "active"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
)

// User roles.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleGuest    = "guest"
)

// Device is a simulated climate-control unit. Devices are never physically
// deleted while telemetry or alerts reference them; IsActive is flipped off.
type Device struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	Name        string    `json:"name"`
	Protocol    string    `json:"protocol"` // "Modbus", "BACnet" - opaque label
	IP          string    `json:"ip"`
	Port        int       `json:"port"`
	Location    string    `json:"location"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reading is one (device, metric, value, timestamp) telemetry fact. Append-only.
type Reading struct {
	ID        int64     `json:"id"`
	DeviceID  int64     `json:"device_id"`
	Metric    string    `json:"metric_name"`
	Value     float64   `json:"metric_value"`
	Timestamp time.Time `json:"timestamp"`
}

// Rule describes the threshold that triggered an alert. Stored as JSON text
// on the alert row.
type Rule struct {
	Metric    string  `json:"metric"`
	Threshold float64 `json:"threshold"`
	Operator  string  `json:"operator"`
}

// Alert is a recorded threshold violation with an acknowledgement lifecycle.
type Alert struct {
	ID             int64      `json:"id"`
	DeviceID       int64      `json:"device_id"`
	Rule           Rule       `json:"rule"`
	Status         string     `json:"status"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	AcknowledgedBy *int64     `json:"acknowledged_by,omitempty"`
	AckAt          *time.Time `json:"ack_at,omitempty"`
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// LogEntry records a system event (device_created, alert_triggered, ...).
type LogEntry struct {
	ID        int64     `json:"id"`
	DeviceID  *int64    `json:"device_id,omitempty"`
	EventType string    `json:"event_type"`
	Message   string    `json:"message"`
	UserID    *int64    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Command is an operator/admin instruction recorded against a device.
type Command struct {
	ID          int64     `json:"id"`
	DeviceID    int64     `json:"device_id"`
	CommandType string    `json:"command_type"`
	Payload     string    `json:"payload,omitempty"`
	Status      string    `json:"status"`
	IssuedBy    int64     `json:"issued_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// DeviceStatus is a device enriched with its latest telemetry and the derived
// online flag. Online is never stored; it is computed from the freshness window.
type DeviceStatus struct {
	Device
	IsOnline      bool               `json:"is_online"`
	LastHeartbeat *time.Time         `json:"last_heartbeat,omitempty"`
	Telemetry     map[string]float64 `json:"telemetry"`
}

// DashboardStats are the aggregate counts shown on the dashboard.
type DashboardStats struct {
	TotalDevices  int     `json:"total_devices"`
	ActiveDevices int     `json:"active_devices"`
	OnlineDevices int     `json:"online_devices"`
	ActiveAlerts  int     `json:"active_alerts"`
	AvgCO2PPM     float64 `json:"avg_co2_ppm"`
}

// DeviceHealth is a coarse health score derived from recent status readings.
type DeviceHealth struct {
	HealthScore int       `json:"health_score"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}
