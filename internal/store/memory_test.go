package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"bms-dashboard/internal/model"
)

func newDevice(t *testing.T, s Store, deviceID string, active bool) model.Device {
	t.Helper()
	d := model.Device{DeviceID: deviceID, Name: deviceID, Protocol: "Modbus", IP: "10.0.0.1", Port: 502, IsActive: active}
	if err := s.CreateDevice(context.Background(), &d); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	return d
}

func TestMemoryStore_ActiveDevicesFilters(t *testing.T) {
	s := NewMemoryStore()
	newDevice(t, s, "HVAC_001", true)
	newDevice(t, s, "HVAC_002", false)

	active, err := s.ActiveDevices(context.Background())
	if err != nil {
		t.Fatalf("ActiveDevices: %v", err)
	}
	if len(active) != 1 || active[0].DeviceID != "HVAC_001" {
		t.Errorf("Expected only HVAC_001 active, got %+v", active)
	}

	all, err := s.AllDevices(context.Background())
	if err != nil {
		t.Fatalf("AllDevices: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 devices, got %d", len(all))
	}
}

func TestMemoryStore_DeactivateKeepsDevice(t *testing.T) {
	s := NewMemoryStore()
	d := newDevice(t, s, "HVAC_001", true)

	if err := s.DeactivateDevice(context.Background(), d.ID); err != nil {
		t.Fatalf("DeactivateDevice: %v", err)
	}
	got, err := s.DeviceByID(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("DeviceByID after deactivate: %v", err)
	}
	if got.IsActive {
		t.Error("Expected device inactive after deactivation")
	}

	if err := s.DeactivateDevice(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown device, got %v", err)
	}
}

func TestMemoryStore_LatestReadingsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	d := newDevice(t, s, "HVAC_001", true)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := model.Reading{DeviceID: d.ID, Metric: model.MetricTemperature, Value: float64(20 + i), Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := s.InsertReading(context.Background(), &r); err != nil {
			t.Fatalf("InsertReading: %v", err)
		}
	}

	readings, err := s.LatestReadings(context.Background(), d.ID, 2)
	if err != nil {
		t.Fatalf("LatestReadings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(readings))
	}
	if readings[0].Value != 22 || readings[1].Value != 21 {
		t.Errorf("Expected newest-first ordering, got %v then %v", readings[0].Value, readings[1].Value)
	}
}

func TestMemoryStore_OnlineDeviceCountAndAverage(t *testing.T) {
	s := NewMemoryStore()
	fresh := newDevice(t, s, "HVAC_001", true)
	stale := newDevice(t, s, "HVAC_002", true)

	now := time.Now().UTC()
	insert := func(deviceID int64, metric string, value float64, ts time.Time) {
		r := model.Reading{DeviceID: deviceID, Metric: metric, Value: value, Timestamp: ts}
		if err := s.InsertReading(context.Background(), &r); err != nil {
			t.Fatalf("InsertReading: %v", err)
		}
	}
	insert(fresh.ID, model.MetricCO2, 600, now)
	insert(fresh.ID, model.MetricCO2, 800, now.Add(-10*time.Second))
	insert(stale.ID, model.MetricCO2, 2000, now.Add(-5*time.Minute))

	since := now.Add(-time.Minute)
	online, err := s.OnlineDeviceCount(context.Background(), since)
	if err != nil {
		t.Fatalf("OnlineDeviceCount: %v", err)
	}
	if online != 1 {
		t.Errorf("Expected 1 online device, got %d", online)
	}

	avg, err := s.AverageMetric(context.Background(), model.MetricCO2, since)
	if err != nil {
		t.Fatalf("AverageMetric: %v", err)
	}
	if avg != 700 {
		t.Errorf("Expected average 700, got %v", avg)
	}
}

func TestMemoryStore_AcknowledgeLifecycle(t *testing.T) {
	s := NewMemoryStore()
	d := newDevice(t, s, "HVAC_001", true)

	a := model.Alert{
		DeviceID:    d.ID,
		Rule:        model.Rule{Metric: "temperature", Threshold: 45, Operator: ">"},
		Status:      model.AlertActive,
		TriggeredAt: time.Now().UTC(),
	}
	if err := s.InsertAlert(context.Background(), &a); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	ackAt := time.Now().UTC()
	if err := s.AcknowledgeAlert(context.Background(), a.ID, 7, ackAt); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}

	acked, err := s.AlertsByStatus(context.Background(), model.AlertAcknowledged)
	if err != nil {
		t.Fatalf("AlertsByStatus: %v", err)
	}
	if len(acked) != 1 {
		t.Fatalf("Expected 1 acknowledged alert, got %d", len(acked))
	}
	if acked[0].AcknowledgedBy == nil || *acked[0].AcknowledgedBy != 7 {
		t.Errorf("Expected acknowledging actor 7, got %v", acked[0].AcknowledgedBy)
	}
	if acked[0].AckAt == nil || !acked[0].AckAt.Equal(ackAt) {
		t.Errorf("Expected ack time %v, got %v", ackAt, acked[0].AckAt)
	}

	// Forward-only: repeating the acknowledge is a defined error.
	if err := s.AcknowledgeAlert(context.Background(), a.ID, 8, time.Now()); !errors.Is(err, ErrAlreadyAcknowledged) {
		t.Errorf("Expected ErrAlreadyAcknowledged, got %v", err)
	}
	// The original actor is preserved.
	acked, _ = s.AlertsByStatus(context.Background(), model.AlertAcknowledged)
	if *acked[0].AcknowledgedBy != 7 {
		t.Errorf("Repeat acknowledge overwrote the actor: %v", *acked[0].AcknowledgedBy)
	}

	if err := s.AcknowledgeAlert(context.Background(), 999, 7, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown alert, got %v", err)
	}
}

func TestMemoryStore_RecentLogsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 3; i++ {
		e := model.LogEntry{EventType: "test", Message: string(rune('a' + i)), Timestamp: time.Now()}
		if err := s.InsertLog(context.Background(), &e); err != nil {
			t.Fatalf("InsertLog: %v", err)
		}
	}

	logs, err := s.RecentLogs(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(logs))
	}
	if logs[0].Message != "c" || logs[1].Message != "b" {
		t.Errorf("Expected newest-first, got %q then %q", logs[0].Message, logs[1].Message)
	}
}

func TestSeedDefaults_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := SeedDefaults(ctx, s); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	devices, _ := s.AllDevices(ctx)
	if len(devices) != 5 {
		t.Fatalf("Expected 5 seeded devices, got %d", len(devices))
	}
	admin, err := s.UserByEmail(ctx, "admin@voltas.com")
	if err != nil {
		t.Fatalf("Seeded admin missing: %v", err)
	}
	if admin.Role != model.RoleAdmin {
		t.Errorf("Expected admin role, got %q", admin.Role)
	}

	// Running the seed again must not duplicate anything.
	if err := SeedDefaults(ctx, s); err != nil {
		t.Fatalf("Second SeedDefaults: %v", err)
	}
	devices, _ = s.AllDevices(ctx)
	if len(devices) != 5 {
		t.Errorf("Second seed changed device count to %d", len(devices))
	}
}
