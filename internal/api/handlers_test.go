package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gwebsocket "github.com/gorilla/websocket"

	"bms-dashboard/internal/auth"
	"bms-dashboard/internal/bms"
	"bms-dashboard/internal/model"
	"bms-dashboard/internal/store"
	"bms-dashboard/internal/websocket"
)

type fixture struct {
	server *httptest.Server
	store  *store.MemoryStore
	hub    *websocket.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	if err := store.SeedDefaults(context.Background(), mem); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}

	service := bms.NewService(mem, nil, time.Minute)
	authManager := auth.NewManager(mem, "test-secret", 60)
	hub := websocket.NewHub()

	router := SetupRouter(NewHandler(service, authManager, hub))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &fixture{server: srv, store: mem, hub: hub}
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(f.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out.AccessToken
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/devices", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestAPI_LoginAndListDevices(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "guest@voltas.com", "guest123")

	resp := f.do(t, http.MethodGet, "/api/devices", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var devices []model.DeviceStatus
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if len(devices) != 5 {
		t.Errorf("Expected 5 seeded devices, got %d", len(devices))
	}
	for _, d := range devices {
		if d.IsOnline {
			t.Errorf("Device %s online without telemetry", d.DeviceID)
		}
	}
}

func TestAPI_LoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(map[string]string{"email": "admin@voltas.com", "password": "nope"})
	resp, err := http.Post(f.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestAPI_AcknowledgeAlertStatusMapping(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "operator@voltas.com", "operator123")

	devices, _ := f.store.AllDevices(context.Background())
	alert := model.Alert{
		DeviceID:    devices[0].ID,
		Rule:        model.Rule{Metric: "temperature", Threshold: 45, Operator: ">"},
		Status:      model.AlertActive,
		TriggeredAt: time.Now().UTC(),
	}
	if err := f.store.InsertAlert(context.Background(), &alert); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	resp := f.do(t, http.MethodPost, "/api/alerts/999/acknowledge", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown alert, got %d", resp.StatusCode)
	}

	path := fmt.Sprintf("/api/alerts/%d/acknowledge", alert.ID)
	resp = f.do(t, http.MethodPost, path, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for first acknowledge, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, path, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for repeat acknowledge, got %d", resp.StatusCode)
	}
}

func TestAPI_DeviceAdminIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	operator := f.login(t, "operator@voltas.com", "operator123")
	admin := f.login(t, "admin@voltas.com", "admin123")

	device := model.Device{DeviceID: "HVAC_010", Name: "Annex Unit", Protocol: "Modbus", IP: "192.168.1.110", Port: 502, IsActive: true}

	resp := f.do(t, http.MethodPost, "/api/devices", operator, device)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for operator, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/api/devices", admin, device)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 for admin, got %d", resp.StatusCode)
	}
	var created model.Device
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created device: %v", err)
	}
	if created.ID == 0 {
		t.Error("Expected created device to carry an ID")
	}
}

func TestAPI_CreateDeviceValidation(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "admin@voltas.com", "admin123")

	bad := model.Device{DeviceID: "", Name: "No ID", Protocol: "Modbus", IP: "10.0.0.1", Port: 502}
	resp := f.do(t, http.MethodPost, "/api/devices", admin, bad)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for missing device_id, got %d", resp.StatusCode)
	}

	bad = model.Device{DeviceID: "HVAC_011", Name: "Bad Port", Protocol: "Modbus", IP: "10.0.0.1", Port: 70000}
	resp = f.do(t, http.MethodPost, "/api/devices", admin, bad)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for invalid port, got %d", resp.StatusCode)
	}
}

func TestAPI_Dashboard(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "guest@voltas.com", "guest123")

	resp := f.do(t, http.MethodGet, "/api/dashboard", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var stats model.DashboardStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalDevices != 5 || stats.ActiveDevices != 5 {
		t.Errorf("Unexpected device counts: %+v", stats)
	}
	if stats.OnlineDevices != 0 || stats.ActiveAlerts != 0 {
		t.Errorf("Expected quiet system, got %+v", stats)
	}
}

func TestAPI_WebSocketReceivesUpdateBroadcast(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := gwebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()

	// Registration happens in the handler goroutine right after the
	// handshake; wait for the client to land in the live set.
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.hub.BroadcastUpdate(time.Now().UTC())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var event websocket.UpdateEvent
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if event.Type != "telemetry_update" {
		t.Errorf("Expected telemetry_update, got %q", event.Type)
	}
}

func TestAPI_Health(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}
