// ABOUTME: Hand-written fakes for the reconciler's collaborators
// ABOUTME: Record every call so tests can assert exactly which side effects happened

package mjolnir

import (
	"context"
	"log/slog"
	"sync"

	"maunium.net/go/mautrix/id"

	"github.com/2389/synapse-warden/internal/supervisor"
	"github.com/2389/synapse-warden/internal/synapse"
)

// fakeSupervisor is an in-memory Supervisor.
type fakeSupervisor struct {
	connected bool
	services  []supervisor.Service
	pushErr   error

	pushes map[string][]byte
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		connected: true,
		services:  []supervisor.Service{{Name: "synapse", Startup: "enabled", Active: true}},
		pushes:    make(map[string][]byte),
	}
}

func (f *fakeSupervisor) CanConnect(ctx context.Context) bool {
	return f.connected
}

func (f *fakeSupervisor) Services(ctx context.Context) []supervisor.Service {
	return f.services
}

func (f *fakeSupervisor) Push(ctx context.Context, path string, data []byte) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes[path] = append([]byte(nil), data...)
	return nil
}

// fakeAPI is an in-memory AdminAPI. Room state is keyed by name;
// registered accounts are keyed by localpart.
type fakeAPI struct {
	rooms       map[string]id.RoomID
	lookupErr   map[string]error
	users       map[string]*synapse.User
	registerErr error
	createErr   error
	adminErr    error
	rateErr     error

	registerCalls  []string
	lookupCalls    []string
	createCalls    []string
	adminCalls     []roomAdminCall
	rateLimitCalls []rateLimitCall
}

type roomAdminCall struct {
	userID id.UserID
	roomID id.RoomID
	token  string
}

type rateLimitCall struct {
	userID id.UserID
	policy synapse.RateLimitPolicy
	token  string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		rooms:     make(map[string]id.RoomID),
		lookupErr: make(map[string]error),
		users:     make(map[string]*synapse.User),
	}
}

func (f *fakeAPI) GetRoomID(ctx context.Context, name, adminToken string) (id.RoomID, bool, error) {
	f.lookupCalls = append(f.lookupCalls, name)
	if err := f.lookupErr[name]; err != nil {
		return "", false, err
	}
	roomID, ok := f.rooms[name]
	return roomID, ok, nil
}

func (f *fakeAPI) CreateRoom(ctx context.Context, name, adminToken string) (id.RoomID, error) {
	f.createCalls = append(f.createCalls, name)
	if f.createErr != nil {
		return "", f.createErr
	}
	roomID := id.RoomID("!" + name + ":example.com")
	f.rooms[name] = roomID
	return roomID, nil
}

func (f *fakeAPI) RegisterUser(ctx context.Context, localpart string, admin bool) (*synapse.User, error) {
	f.registerCalls = append(f.registerCalls, localpart)
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	// Idempotent contract: an existing account comes back with its
	// original credential instead of erroring
	if user, ok := f.users[localpart]; ok {
		return user, nil
	}
	user := &synapse.User{
		Localpart:   localpart,
		UserID:      id.UserID("@" + localpart + ":example.com"),
		AccessToken: localpart + "-token",
		Admin:       admin,
	}
	f.users[localpart] = user
	return user, nil
}

func (f *fakeAPI) MakeRoomAdmin(ctx context.Context, userID id.UserID, roomID id.RoomID, adminToken string) error {
	f.adminCalls = append(f.adminCalls, roomAdminCall{userID: userID, roomID: roomID, token: adminToken})
	return f.adminErr
}

func (f *fakeAPI) OverrideRateLimit(ctx context.Context, userID id.UserID, policy synapse.RateLimitPolicy, adminToken string) error {
	f.rateLimitCalls = append(f.rateLimitCalls, rateLimitCall{userID: userID, policy: policy, token: adminToken})
	return f.rateErr
}

// externalCalls counts every admin API side effect, for asserting that
// a deferred pass touched nothing.
func (f *fakeAPI) externalCalls() int {
	return len(f.registerCalls) + len(f.lookupCalls) + len(f.createCalls) +
		len(f.adminCalls) + len(f.rateLimitCalls)
}

// recordingHandler is a slog.Handler that captures records so tests
// can assert on diagnostics.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler       { return h }

// errorMessages returns the messages of all error-level records.
func (h *recordingHandler) errorMessages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var msgs []string
	for _, r := range h.records {
		if r.Level == slog.LevelError {
			msgs = append(msgs, r.Message)
		}
	}
	return msgs
}
