// internal/bms/service.go
package bms

import (
	"context"
	"fmt"
	"math"
	"time"

	"bms-dashboard/internal/auth"
	"bms-dashboard/internal/cache"
	"bms-dashboard/internal/model"
	"bms-dashboard/internal/store"
)

// latestReadingRows is how many telemetry rows are collapsed into the
// per-device metric map (one row per metric, five metrics per cycle).
const latestReadingRows = 5

// healthSampleRows bounds how much recent telemetry feeds the health score.
const healthSampleRows = 50

// Service exposes the query and mutation operations the web layer consumes.
// It orchestrates the store and the optional cache; it holds no state of its
// own beyond configuration.
type Service struct {
	store     store.Store
	cache     *cache.Cache
	freshness time.Duration
	now       func() time.Time
}

// NewService wires the service. cache may be nil.
func NewService(s store.Store, c *cache.Cache, freshness time.Duration) *Service {
	return &Service{store: s, cache: c, freshness: freshness, now: time.Now}
}

// ListDevices returns every device enriched with its latest per-metric values
// and the derived online flag. A device is online iff its most recent reading
// falls within the freshness window; the flag is never stored.
func (s *Service) ListDevices(ctx context.Context) ([]model.DeviceStatus, error) {
	devices, err := s.store.AllDevices(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().UTC().Add(-s.freshness)
	statuses := make([]model.DeviceStatus, 0, len(devices))
	for _, device := range devices {
		ds := model.DeviceStatus{Device: device, Telemetry: map[string]float64{}}

		if cached := s.cache.LatestTelemetry(ctx, device.DeviceID); cached != nil {
			ds.Telemetry = cached
		} else {
			readings, err := s.store.LatestReadings(ctx, device.ID, latestReadingRows)
			if err != nil {
				return nil, err
			}
			for _, r := range readings {
				if _, seen := ds.Telemetry[r.Metric]; !seen {
					ds.Telemetry[r.Metric] = r.Value
				}
			}
		}

		last, err := s.store.LastReadingTime(ctx, device.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			ds.LastHeartbeat = last
			ds.IsOnline = !last.Before(cutoff)
		}
		statuses = append(statuses, ds)
	}
	return statuses, nil
}

// DashboardStats computes the aggregate counts, served from the cache when a
// fresh copy exists.
func (s *Service) DashboardStats(ctx context.Context) (model.DashboardStats, error) {
	if cached := s.cache.DashboardStats(ctx); cached != nil {
		return *cached, nil
	}

	all, err := s.store.AllDevices(ctx)
	if err != nil {
		return model.DashboardStats{}, err
	}
	active := 0
	for _, d := range all {
		if d.IsActive {
			active++
		}
	}

	since := s.now().UTC().Add(-s.freshness)
	online, err := s.store.OnlineDeviceCount(ctx, since)
	if err != nil {
		return model.DashboardStats{}, err
	}
	activeAlerts, err := s.store.CountAlertsByStatus(ctx, model.AlertActive)
	if err != nil {
		return model.DashboardStats{}, err
	}
	avgCO2, err := s.store.AverageMetric(ctx, model.MetricCO2, since)
	if err != nil {
		return model.DashboardStats{}, err
	}

	stats := model.DashboardStats{
		TotalDevices:  len(all),
		ActiveDevices: active,
		OnlineDevices: online,
		ActiveAlerts:  activeAlerts,
		AvgCO2PPM:     math.Round(avgCO2*10) / 10,
	}
	s.cache.SetDashboardStats(ctx, stats)
	return stats, nil
}

// AlertView is an alert joined with its device name for display.
type AlertView struct {
	model.Alert
	DeviceName string `json:"device_name"`
}

// ListAlerts returns every alert, newest first, with device names attached.
func (s *Service) ListAlerts(ctx context.Context) ([]AlertView, error) {
	alerts, err := s.store.AllAlerts(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := s.store.AllDevices(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(devices))
	for _, d := range devices {
		names[d.ID] = d.Name
	}

	views := make([]AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, AlertView{Alert: a, DeviceName: names[a.DeviceID]})
	}
	return views, nil
}

// AcknowledgeAlert transitions an active alert to acknowledged and records
// the actor. Any authenticated actor may acknowledge. Missing ids surface
// store.ErrNotFound; repeat calls surface store.ErrAlreadyAcknowledged.
func (s *Service) AcknowledgeAlert(ctx context.Context, id int64, actor *auth.Claims) error {
	if actor == nil {
		return auth.ErrInvalidCredentials
	}
	return s.store.AcknowledgeAlert(ctx, id, actor.UserID, s.now().UTC())
}

// CreateDevice registers a new device. Admin only.
func (s *Service) CreateDevice(ctx context.Context, actor *auth.Claims, device *model.Device) error {
	if err := auth.RequireRole(actor, model.RoleAdmin); err != nil {
		return err
	}
	if err := s.store.CreateDevice(ctx, device); err != nil {
		return err
	}
	s.logEvent(ctx, &device.ID, &actor.UserID, "device_created",
		fmt.Sprintf("Device %s (%s) created", device.DeviceID, device.Name))
	return nil
}

// UpdateDevice applies an administrative update. Admin only.
func (s *Service) UpdateDevice(ctx context.Context, actor *auth.Claims, device *model.Device) error {
	if err := auth.RequireRole(actor, model.RoleAdmin); err != nil {
		return err
	}
	if err := s.store.UpdateDevice(ctx, device); err != nil {
		return err
	}
	s.logEvent(ctx, &device.ID, &actor.UserID, "device_updated",
		fmt.Sprintf("Device %s updated", device.DeviceID))
	return nil
}

// DeactivateDevice logically removes a device; telemetry and alert history
// stay referenced. Admin only.
func (s *Service) DeactivateDevice(ctx context.Context, actor *auth.Claims, id int64) error {
	if err := auth.RequireRole(actor, model.RoleAdmin); err != nil {
		return err
	}
	if err := s.store.DeactivateDevice(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, &id, &actor.UserID, "device_deactivated",
		fmt.Sprintf("Device %d deactivated", id))
	return nil
}

// SendCommand records a command against a device. Admin or operator.
func (s *Service) SendCommand(ctx context.Context, actor *auth.Claims, cmd *model.Command) error {
	if err := auth.RequireRole(actor, model.RoleAdmin, model.RoleOperator); err != nil {
		return err
	}
	if _, err := s.store.DeviceByID(ctx, cmd.DeviceID); err != nil {
		return err
	}
	cmd.Status = "executed"
	cmd.IssuedBy = actor.UserID
	cmd.Timestamp = s.now().UTC()
	if err := s.store.InsertCommand(ctx, cmd); err != nil {
		return err
	}
	s.logEvent(ctx, &cmd.DeviceID, &actor.UserID, "command_sent",
		fmt.Sprintf("Command %s sent to device %d", cmd.CommandType, cmd.DeviceID))
	return nil
}

// ListLogs returns the newest n event log entries.
func (s *Service) ListLogs(ctx context.Context, n int) ([]model.LogEntry, error) {
	return s.store.RecentLogs(ctx, n)
}

// LogLogin records a successful login. Best-effort.
func (s *Service) LogLogin(ctx context.Context, userID int64, email string) {
	s.logEvent(ctx, nil, &userID, "user_login", fmt.Sprintf("User %s logged in", email))
}

// DeviceHealth derives a coarse health score from the device's recent status
// readings: more than 10% faults is critical, more than 20% warnings is degraded.
func (s *Service) DeviceHealth(ctx context.Context, deviceID int64) (model.DeviceHealth, error) {
	if _, err := s.store.DeviceByID(ctx, deviceID); err != nil {
		return model.DeviceHealth{}, err
	}
	readings, err := s.store.LatestReadings(ctx, deviceID, healthSampleRows)
	if err != nil {
		return model.DeviceHealth{}, err
	}

	var total, faults, warnings int
	for _, r := range readings {
		if r.Metric != model.MetricStatus {
			continue
		}
		total++
		switch r.Value {
		case 2:
			faults++
		case 1:
			warnings++
		}
	}

	health := model.DeviceHealth{HealthScore: 100, Status: "healthy", LastUpdated: s.now().UTC()}
	if total == 0 {
		health.HealthScore = 0
		health.Status = "unknown"
		return health, nil
	}
	if float64(faults) > float64(total)*0.1 {
		health.HealthScore -= 50
		health.Status = "critical"
	} else if float64(warnings) > float64(total)*0.2 {
		health.HealthScore -= 30
		health.Status = "warning"
	}
	return health, nil
}

func (s *Service) logEvent(ctx context.Context, deviceID, userID *int64, eventType, message string) {
	entry := model.LogEntry{
		DeviceID:  deviceID,
		EventType: eventType,
		Message:   message,
		UserID:    userID,
		Timestamp: s.now().UTC(),
	}
	// Event logging is observability, not correctness; errors are dropped.
	_ = s.store.InsertLog(ctx, &entry)
}
