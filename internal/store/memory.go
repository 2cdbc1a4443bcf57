// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bms-dashboard/internal/model"
)

// MemoryStore is an in-memory Store used by tests and as a degraded mode when
// no database is reachable. All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	devices  map[int64]model.Device
	readings []model.Reading
	alerts   map[int64]model.Alert
	users    map[int64]model.User
	logs     []model.LogEntry
	commands []model.Command
	nextID   map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[int64]model.Device),
		alerts:  make(map[int64]model.Alert),
		users:   make(map[int64]model.User),
		nextID:  make(map[string]int64),
	}
}

func (s *MemoryStore) next(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

func (s *MemoryStore) ActiveDevices(ctx context.Context) ([]model.Device, error) {
	return s.listDevices(func(d model.Device) bool { return d.IsActive })
}

func (s *MemoryStore) AllDevices(ctx context.Context) ([]model.Device, error) {
	return s.listDevices(func(model.Device) bool { return true })
}

func (s *MemoryStore) listDevices(keep func(model.Device) bool) ([]model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var devices []model.Device
	for _, d := range s.devices {
		if keep(d) {
			devices = append(devices, d)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (s *MemoryStore) DeviceByID(ctx context.Context, id int64) (*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) CreateDevice(ctx context.Context, d *model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.next("device")
	d.CreatedAt = time.Now().UTC()
	s.devices[d.ID] = *d
	return nil
}

func (s *MemoryStore) UpdateDevice(ctx context.Context, d *model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.ID]; !ok {
		return ErrNotFound
	}
	s.devices[d.ID] = *d
	return nil
}

func (s *MemoryStore) DeactivateDevice(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.IsActive = false
	s.devices[id] = d
	return nil
}

func (s *MemoryStore) InsertReading(ctx context.Context, r *model.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.next("reading")
	s.readings = append(s.readings, *r)
	return nil
}

func (s *MemoryStore) LatestReadings(ctx context.Context, deviceID int64, n int) ([]model.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var readings []model.Reading
	for i := len(s.readings) - 1; i >= 0 && len(readings) < n; i-- {
		if s.readings[i].DeviceID == deviceID {
			readings = append(readings, s.readings[i])
		}
	}
	return readings, nil
}

func (s *MemoryStore) LastReadingTime(ctx context.Context, deviceID int64) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for i := range s.readings {
		r := s.readings[i]
		if r.DeviceID != deviceID {
			continue
		}
		if last == nil || r.Timestamp.After(*last) {
			ts := r.Timestamp
			last = &ts
		}
	}
	return last, nil
}

func (s *MemoryStore) OnlineDeviceCount(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	for _, r := range s.readings {
		if !r.Timestamp.Before(since) {
			seen[r.DeviceID] = true
		}
	}
	return len(seen), nil
}

func (s *MemoryStore) AverageMetric(ctx context.Context, metric string, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum float64
	var count int
	for _, r := range s.readings {
		if r.Metric == metric && !r.Timestamp.Before(since) {
			sum += r.Value
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

func (s *MemoryStore) InsertAlert(ctx context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.next("alert")
	s.alerts[a.ID] = *a
	return nil
}

func (s *MemoryStore) AllAlerts(ctx context.Context) ([]model.Alert, error) {
	return s.listAlerts(func(model.Alert) bool { return true })
}

func (s *MemoryStore) AlertsByStatus(ctx context.Context, status string) ([]model.Alert, error) {
	return s.listAlerts(func(a model.Alert) bool { return a.Status == status })
}

func (s *MemoryStore) listAlerts(keep func(model.Alert) bool) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var alerts []model.Alert
	for _, a := range s.alerts {
		if keep(a) {
			alerts = append(alerts, a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID > alerts[j].ID })
	return alerts, nil
}

func (s *MemoryStore) CountAlertsByStatus(ctx context.Context, status string) (int, error) {
	alerts, _ := s.AlertsByStatus(ctx, status)
	return len(alerts), nil
}

func (s *MemoryStore) AcknowledgeAlert(ctx context.Context, id, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != model.AlertActive {
		return ErrAlreadyAcknowledged
	}
	a.Status = model.AlertAcknowledged
	a.AcknowledgedBy = &userID
	a.AckAt = &at
	s.alerts[id] = a
	return nil
}

func (s *MemoryStore) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.next("user")
	u.CreatedAt = time.Now().UTC()
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) InsertLog(ctx context.Context, e *model.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.next("log")
	s.logs = append(s.logs, *e)
	return nil
}

func (s *MemoryStore) RecentLogs(ctx context.Context, n int) ([]model.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.logs) {
		n = len(s.logs)
	}
	entries := make([]model.LogEntry, 0, n)
	for i := len(s.logs) - 1; i >= 0 && len(entries) < n; i-- {
		entries = append(entries, s.logs[i])
	}
	return entries, nil
}

func (s *MemoryStore) InsertCommand(ctx context.Context, c *model.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.next("command")
	s.commands = append(s.commands, *c)
	return nil
}

// Commands returns a copy of the recorded commands, newest last. Test helper.
func (s *MemoryStore) Commands() []model.Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// Readings returns a copy of every reading, in insertion order. Test helper.
func (s *MemoryStore) Readings() []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}
