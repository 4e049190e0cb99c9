// ABOUTME: Tests for the status evaluator and credential resolution
// ABOUTME: Each case arranges fresh observations and asserts the resulting status and side effects

package mjolnir

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/2389/synapse-warden/internal/config"
	"github.com/2389/synapse-warden/internal/secrets"
	"github.com/2389/synapse-warden/internal/supervisor"
	"github.com/2389/synapse-warden/internal/synapse"
)

func testConfig() *config.Config {
	return &config.Config{
		Homeserver: config.HomeserverConfig{
			PublicURL:  "https://chat.example.com",
			LocalURL:   "http://localhost:8008",
			ServerName: "example.com",
		},
		Mjolnir: config.MjolnirConfig{
			Enabled:     true,
			BotUsername: "moderator",
			ConfigPath:  "/data/config/production.yaml",
		},
		Supervisor: config.SupervisorConfig{
			SocketPath:  "/var/run/synapse/supervisor.sock",
			ServiceName: "synapse",
		},
	}
}

type fixture struct {
	m     *Mjolnir
	sup   *fakeSupervisor
	api   *fakeAPI
	store *secrets.MemoryStore
	logs  *recordingHandler
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	sup := newFakeSupervisor()
	api := newFakeAPI()
	store := secrets.NewMemoryStore()
	logs := &recordingHandler{}
	m := New(cfg, sup, store, api, slog.New(logs))
	return &fixture{m: m, sup: sup, api: api, store: store, logs: logs}
}

// ready arranges the happy-path preconditions: token stored and
// moderators room present.
func (f *fixture) ready(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), secrets.KeyAdminToken, "admin-token"))
	f.api.rooms[MembershipRoomName] = "!mods:example.com"
}

// parseArtifact decodes a pushed config artifact for assertions.
func parseArtifact(t *testing.T, data []byte) map[string]any {
	t.Helper()
	require.NotEmpty(t, data)
	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	return parsed
}

func TestCollectStatus_FeatureDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Mjolnir.Enabled = false
	f := newFixture(t, cfg)
	f.ready(t)

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, KindNoOpinion, status.Kind)
	assert.Zero(t, f.api.externalCalls())
}

func TestCollectStatus_ContainerOff(t *testing.T) {
	f := newFixture(t, nil)
	f.ready(t)
	f.sup.connected = false

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, KindNoOpinion, status.Kind)
	assert.Zero(t, f.api.externalCalls())
}

func TestCollectStatus_NoWorkload(t *testing.T) {
	f := newFixture(t, nil)
	f.ready(t)
	f.sup.services = nil

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, KindMaintenance, status.Kind)
	assert.Contains(t, status.Detail, "waiting")
	assert.Zero(t, f.api.externalCalls())
}

func TestCollectStatus_AddonAlreadyRunning(t *testing.T) {
	f := newFixture(t, nil)
	f.ready(t)
	f.sup.services = append(f.sup.services, supervisor.Service{
		Name: AddonServiceName, Startup: "enabled", Active: true,
	})

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)

	// Already provisioned: nothing to assert, nothing to re-run
	assert.Equal(t, KindNoOpinion, status.Kind)
	assert.Zero(t, f.api.externalCalls())
}

func TestCollectStatus_NoAdminToken(t *testing.T) {
	f := newFixture(t, nil)
	f.api.rooms[MembershipRoomName] = "!mods:example.com"
	// No token stored

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, KindMaintenance, status.Kind)
	assert.Zero(t, f.api.externalCalls())

	// Exactly one error-level diagnostic: this is a setup problem, not
	// a transient one
	msgs := f.logs.errorMessages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "admin access token was not found")
}

func TestCollectStatus_ContainerOff_NoTokenDiagnostic(t *testing.T) {
	f := newFixture(t, nil)
	f.sup.connected = false

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)

	// Unreachable container is transient: silent, no error log
	assert.Equal(t, KindNoOpinion, status.Kind)
	assert.Empty(t, f.logs.errorMessages())
}

func TestCollectStatus_Blocked(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Put(context.Background(), secrets.KeyAdminToken, "admin-token"))
	// Moderators room not created

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, KindBlocked, status.Kind)
	assert.Contains(t, status.Detail, "moderators")
	assert.Contains(t, status.Detail, "required")

	// Lookup happened, but the sequencer never ran
	assert.Equal(t, []string{MembershipRoomName}, f.api.lookupCalls)
	assert.Empty(t, f.api.registerCalls)
}

func TestCollectStatus_LookupAPIError(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Put(context.Background(), secrets.KeyAdminToken, "admin-token"))
	f.api.lookupErr[MembershipRoomName] = &synapse.APIError{
		Op: "get room id", StatusCode: 401, ErrCode: "M_UNKNOWN_TOKEN",
	}

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)

	// A lookup hiccup suppresses enablement for this pass without
	// claiming the room is missing
	assert.Equal(t, KindNoOpinion, status.Kind)
	assert.NotEqual(t, KindBlocked, status.Kind)
	assert.Empty(t, f.api.registerCalls)
}

func TestCollectStatus_Active_CreatesManagementRoom(t *testing.T) {
	f := newFixture(t, nil)
	f.ready(t)

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindActive, status.Kind)

	// Bot account registered
	assert.Equal(t, []string{"moderator"}, f.api.registerCalls)

	// Management room was absent, so it was created
	assert.Equal(t, []string{ManagementRoomName}, f.api.createCalls)
	mgmtRoom := f.api.rooms[ManagementRoomName]

	// Admin granted with the deployment credential
	require.Len(t, f.api.adminCalls, 1)
	assert.EqualValues(t, "@moderator:example.com", f.api.adminCalls[0].userID)
	assert.Equal(t, mgmtRoom, f.api.adminCalls[0].roomID)
	assert.Equal(t, "admin-token", f.api.adminCalls[0].token)

	// Config artifact carries exactly the bot token and the new room id
	artifact := parseArtifact(t, f.sup.pushes["/data/config/production.yaml"])
	assert.Equal(t, "moderator-token", artifact["accessToken"])
	assert.Equal(t, string(mgmtRoom), artifact["managementRoom"])

	// Rate limit override ran last, for the bot, with the admin token
	require.Len(t, f.api.rateLimitCalls, 1)
	assert.EqualValues(t, "@moderator:example.com", f.api.rateLimitCalls[0].userID)
	assert.Equal(t, "admin-token", f.api.rateLimitCalls[0].token)
}

func TestCollectStatus_Active_ReusesManagementRoom(t *testing.T) {
	f := newFixture(t, nil)
	f.ready(t)
	f.api.rooms[ManagementRoomName] = "!existing:example.com"

	status, err := f.m.CollectStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindActive, status.Kind)

	// Never creates a second room
	assert.Empty(t, f.api.createCalls)

	require.Len(t, f.api.adminCalls, 1)
	assert.EqualValues(t, "!existing:example.com", f.api.adminCalls[0].roomID)

	artifact := parseArtifact(t, f.sup.pushes["/data/config/production.yaml"])
	assert.Equal(t, "!existing:example.com", artifact["managementRoom"])
}

func TestCollectStatus_GrantAdminFails(t *testing.T) {
	f := newFixture(t, nil)
	f.ready(t)
	f.api.adminErr = &synapse.APIError{Op: "make room admin", StatusCode: 403, ErrCode: "M_FORBIDDEN"}

	status, err := f.m.CollectStatus(context.Background())
	require.Error(t, err)

	// Aborted before config and rate-limit steps; never claims Active
	assert.NotEqual(t, KindActive, status.Kind)
	assert.Empty(t, f.sup.pushes)
	assert.Empty(t, f.api.rateLimitCalls)
}

func TestGetMembershipRoomID(t *testing.T) {
	f := newFixture(t, nil)
	f.api.rooms[MembershipRoomName] = "!mods:example.com"

	roomID, found, err := f.m.GetMembershipRoomID(context.Background(), "admin-token")
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, "!mods:example.com", roomID)
	assert.Equal(t, []string{"moderators"}, f.api.lookupCalls)
}

func TestBootstrapAdminToken_Registers(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.m.BootstrapAdminToken(context.Background()))

	assert.Equal(t, []string{"warden-admin"}, f.api.registerCalls)
	token, err := f.store.Get(context.Background(), secrets.KeyAdminToken)
	require.NoError(t, err)
	assert.Equal(t, "warden-admin-token", token)
}

func TestBootstrapAdminToken_AlreadyStored(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Put(context.Background(), secrets.KeyAdminToken, "existing"))

	require.NoError(t, f.m.BootstrapAdminToken(context.Background()))

	assert.Empty(t, f.api.registerCalls)
	token, err := f.store.Get(context.Background(), secrets.KeyAdminToken)
	require.NoError(t, err)
	assert.Equal(t, "existing", token)
}

func TestBootstrapAdminToken_ContainerOff(t *testing.T) {
	f := newFixture(t, nil)
	f.sup.connected = false

	require.NoError(t, f.m.BootstrapAdminToken(context.Background()))

	assert.Empty(t, f.api.registerCalls)
	_, err := f.store.Get(context.Background(), secrets.KeyAdminToken)
	assert.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestNew_NilLoggerDefaults(t *testing.T) {
	m := New(testConfig(), newFakeSupervisor(), secrets.NewMemoryStore(), newFakeAPI(), nil)
	require.NotNil(t, m)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "no-opinion", KindNoOpinion.String())
	assert.Equal(t, "maintenance", KindMaintenance.String())
	assert.Equal(t, "blocked", KindBlocked.String())
	assert.Equal(t, "active", KindActive.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
