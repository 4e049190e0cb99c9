// ABOUTME: Enablement sequencer: provisions the bot account, management room, config, and rate limits
// ABOUTME: Every step is idempotent; the first API failure aborts the pass and propagates

package mjolnir

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"

	"github.com/2389/synapse-warden/internal/secrets"
	"github.com/2389/synapse-warden/internal/synapse"
)

// addonConfig is the configuration artifact the add-on reads at startup.
type addonConfig struct {
	HomeserverURL         string `yaml:"homeserverUrl"`
	RawHomeserverURL      string `yaml:"rawHomeserverUrl"`
	AccessToken           string `yaml:"accessToken"`
	ManagementRoom        string `yaml:"managementRoom"`
	DataPath              string `yaml:"dataPath"`
	AutojoinOnlyIfManager bool   `yaml:"autojoinOnlyIfManager"`
	RecordIgnoredInvites  bool   `yaml:"recordIgnoredInvites"`
	NoOp                  bool   `yaml:"noop"`
}

// Enable brings the moderation add-on into the desired running
// configuration. Safe to call repeatedly: account registration
// returns the existing identity, the management room is reused when
// present, and the remaining steps overwrite rather than accumulate.
//
// When the container is unreachable the routine no-ops without any
// side effects. Any API failure aborts the remaining steps and
// propagates; retries belong to the next reconciliation pass.
func (m *Mjolnir) Enable(ctx context.Context, adminToken string) error {
	if !m.supervisor.CanConnect(ctx) {
		m.logger.Debug("deferring enablement, container not reachable")
		return nil
	}

	// Step 1: ensure the bot account. No existence check first; the
	// homeserver's register contract is the single source of truth and
	// returns the existing identity's credential when the account is
	// already there.
	user, err := m.api.RegisterUser(ctx, m.cfg.Mjolnir.BotUsername, false)
	if err != nil {
		return fmt.Errorf("ensuring bot account: %w", err)
	}

	// Cache the bot credential locally. Failure here doesn't abort:
	// the cache is a convenience, the homeserver remains authoritative.
	if err := m.store.Put(ctx, secrets.KeyBotToken, user.AccessToken); err != nil {
		m.logger.Warn("caching bot access token failed", "error", err)
	}

	// Step 2: ensure the management room, reusing one if present
	roomID, found, err := m.api.GetRoomID(ctx, ManagementRoomName, adminToken)
	if err != nil {
		return fmt.Errorf("looking up management room: %w", err)
	}
	if !found {
		roomID, err = m.api.CreateRoom(ctx, ManagementRoomName, adminToken)
		if err != nil {
			return fmt.Errorf("creating management room: %w", err)
		}
	}

	// Step 3: the bot cannot grant itself admin rights; use the
	// deployment admin credential
	if err := m.api.MakeRoomAdmin(ctx, user.UserID, roomID, adminToken); err != nil {
		return fmt.Errorf("granting room admin: %w", err)
	}

	// Step 4: materialize the config artifact inside the container
	artifact, err := m.renderAddonConfig(user.AccessToken, roomID)
	if err != nil {
		return fmt.Errorf("rendering addon config: %w", err)
	}
	if err := m.supervisor.Push(ctx, m.cfg.Mjolnir.ConfigPath, artifact); err != nil {
		return fmt.Errorf("writing addon config: %w", err)
	}

	// Step 5: exempt the bot from per-user rate limiting. Last because
	// it is least critical and most tolerant of being retried.
	policy := synapse.RateLimitPolicy{
		MessagesPerSecond: m.cfg.Mjolnir.RateLimit.MessagesPerSecond,
		BurstCount:        m.cfg.Mjolnir.RateLimit.BurstCount,
	}
	if err := m.api.OverrideRateLimit(ctx, user.UserID, policy, adminToken); err != nil {
		return fmt.Errorf("overriding rate limit: %w", err)
	}

	m.logger.Info("mjolnir enabled",
		"bot", user.UserID,
		"management_room", roomID,
	)
	return nil
}

// renderAddonConfig produces the YAML artifact the add-on reads.
// Output is deterministic for a given token and room so repeated
// passes write identical content.
func (m *Mjolnir) renderAddonConfig(accessToken string, roomID id.RoomID) ([]byte, error) {
	homeserverURL := m.cfg.Homeserver.PublicURL
	if homeserverURL == "" {
		homeserverURL = m.cfg.Homeserver.LocalURL
	}

	cfg := addonConfig{
		HomeserverURL:         homeserverURL,
		RawHomeserverURL:      m.cfg.Homeserver.LocalURL,
		AccessToken:           accessToken,
		ManagementRoom:        string(roomID),
		DataPath:              "/data",
		AutojoinOnlyIfManager: true,
		RecordIgnoredInvites:  false,
		NoOp:                  false,
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}
