// ABOUTME: Core reconciler for Mjolnir enablement: credential resolution and status evaluation
// ABOUTME: Every pass recomputes from fresh observations; nothing here assumes a previous pass completed

package mjolnir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix/id"

	"github.com/2389/synapse-warden/internal/config"
	"github.com/2389/synapse-warden/internal/secrets"
	"github.com/2389/synapse-warden/internal/supervisor"
	"github.com/2389/synapse-warden/internal/synapse"
)

// Fixed room and service names.
const (
	// MembershipRoomName must exist before enablement; operators create
	// it out-of-band and it lists who may moderate.
	MembershipRoomName = "moderators"

	// ManagementRoomName is where the bot posts its own operational
	// messages. Created on demand.
	ManagementRoomName = "management"

	// AddonServiceName is the workload name the add-on runs under once
	// provisioned.
	AddonServiceName = "mjolnir"

	// adminLocalpart is the account registered when bootstrapping an
	// admin token.
	adminLocalpart = "warden-admin"
)

// Supervisor defines what the reconciler needs from the container's
// process supervisor.
type Supervisor interface {
	CanConnect(ctx context.Context) bool
	Services(ctx context.Context) []supervisor.Service
	Push(ctx context.Context, path string, data []byte) error
}

// AdminAPI defines what the reconciler needs from the homeserver's
// admin API.
type AdminAPI interface {
	GetRoomID(ctx context.Context, name, adminToken string) (id.RoomID, bool, error)
	CreateRoom(ctx context.Context, name, adminToken string) (id.RoomID, error)
	RegisterUser(ctx context.Context, localpart string, admin bool) (*synapse.User, error)
	MakeRoomAdmin(ctx context.Context, userID id.UserID, roomID id.RoomID, adminToken string) error
	OverrideRateLimit(ctx context.Context, userID id.UserID, policy synapse.RateLimitPolicy, adminToken string) error
}

// SecretStore defines what the reconciler needs from secret persistence.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
}

// Mjolnir reconciles the moderation add-on's enablement against the
// homeserver. All collaborators are injected; there is no package
// state.
type Mjolnir struct {
	cfg        *config.Config
	supervisor Supervisor
	store      SecretStore
	api        AdminAPI
	logger     *slog.Logger
}

// New creates a reconciler from its collaborators.
func New(cfg *config.Config, sup Supervisor, store SecretStore, api AdminAPI, logger *slog.Logger) *Mjolnir {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mjolnir{
		cfg:        cfg,
		supervisor: sup,
		store:      store,
		api:        api,
		logger:     logger.With("component", "mjolnir"),
	}
}

// adminAccessToken resolves the deployment admin credential.
// An unreachable container is an expected transient state and stays
// silent; a reachable container with no stored token is a setup
// problem and logs exactly one error.
func (m *Mjolnir) adminAccessToken(ctx context.Context) (string, bool) {
	if !m.supervisor.CanConnect(ctx) {
		return "", false
	}

	token, err := m.store.Get(ctx, secrets.KeyAdminToken)
	if err != nil {
		m.logger.Error("admin access token was not found, please check the logs")
		return "", false
	}
	return token, true
}

// GetMembershipRoomID looks up the moderators room that must exist
// before the add-on can be enabled.
func (m *Mjolnir) GetMembershipRoomID(ctx context.Context, adminToken string) (id.RoomID, bool, error) {
	return m.api.GetRoomID(ctx, MembershipRoomName, adminToken)
}

// CollectStatus runs one reconciliation pass and returns the resulting
// status. The decision sequence short-circuits at the first applicable
// rule. A non-nil error means the enablement sequence itself failed
// mid-provisioning; that is an incident, not routine status.
func (m *Mjolnir) CollectStatus(ctx context.Context) (Status, error) {
	if !m.cfg.Mjolnir.Enabled {
		return NoOpinion(), nil
	}

	if !m.supervisor.CanConnect(ctx) {
		// Reachability reporting belongs to another evaluator
		return NoOpinion(), nil
	}

	services := m.supervisor.Services(ctx)
	if m.serviceActive(services, AddonServiceName) {
		// Already provisioned and running; nothing to assert
		return NoOpinion(), nil
	}
	if !m.serviceActive(services, m.cfg.Supervisor.ServiceName) {
		return Maintenance("waiting for Synapse workload"), nil
	}

	adminToken, ok := m.adminAccessToken(ctx)
	if !ok {
		return Maintenance("waiting for admin access token"), nil
	}

	roomID, found, err := m.GetMembershipRoomID(ctx, adminToken)
	if err != nil {
		// A transient admin API hiccup must not be misreported as a
		// missing room; suppress enablement for this pass only
		m.logger.Error("looking up moderators room failed", "error", err)
		return NoOpinion(), nil
	}
	if !found {
		return Blocked("moderators room not found and is required by Mjolnir, please check the logs"), nil
	}

	m.logger.Debug("moderators room found", "room_id", roomID)

	if err := m.Enable(ctx, adminToken); err != nil {
		return NoOpinion(), fmt.Errorf("enabling mjolnir: %w", err)
	}
	return Active(), nil
}

// serviceActive reports whether a workload with the given name is
// currently active.
func (m *Mjolnir) serviceActive(services []supervisor.Service, name string) bool {
	for _, svc := range services {
		if svc.Name == name && svc.Active {
			return true
		}
	}
	return false
}

// BootstrapAdminToken ensures the secret store holds an admin API
// token, registering a dedicated admin account when it doesn't.
// Called once at startup when secrets.bootstrap_admin is set.
func (m *Mjolnir) BootstrapAdminToken(ctx context.Context) error {
	_, err := m.store.Get(ctx, secrets.KeyAdminToken)
	if err == nil {
		return nil
	}
	if !errors.Is(err, secrets.ErrNotFound) {
		return fmt.Errorf("reading admin token: %w", err)
	}

	if !m.supervisor.CanConnect(ctx) {
		m.logger.Info("deferring admin token bootstrap, container not reachable")
		return nil
	}

	user, err := m.api.RegisterUser(ctx, adminLocalpart, true)
	if err != nil {
		return fmt.Errorf("registering admin user: %w", err)
	}
	if err := m.store.Put(ctx, secrets.KeyAdminToken, user.AccessToken); err != nil {
		return fmt.Errorf("storing admin token: %w", err)
	}

	m.logger.Info("bootstrapped admin access token", "user_id", user.UserID)
	return nil
}
