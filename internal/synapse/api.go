// ABOUTME: Synapse admin API client for room, user, and rate-limit management
// ABOUTME: Built on the mautrix client; every call authenticates with a caller-supplied token

package synapse

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// RateLimitPolicy parameterizes the per-user rate-limit override.
// Zero values exempt the user from rate limiting entirely.
type RateLimitPolicy struct {
	MessagesPerSecond int
	BurstCount        int
}

// User is an account on the homeserver along with a usable credential.
type User struct {
	Localpart   string
	UserID      id.UserID
	AccessToken string
	Admin       bool
}

// Client talks to a single homeserver's admin and client APIs.
type Client struct {
	baseURL      string
	serverName   string
	sharedSecret string
	logger       *slog.Logger
}

// NewClient creates an admin API client for the homeserver at baseURL.
// sharedSecret authorizes the shared-secret registration flow and is
// also used to derive deterministic bot passwords.
func NewClient(baseURL, serverName, sharedSecret string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      baseURL,
		serverName:   serverName,
		sharedSecret: sharedSecret,
		logger:       logger.With("component", "synapse"),
	}
}

// withToken builds a mautrix client bound to the given access token.
// Clients are cheap to construct; one per call keeps tokens out of
// shared state.
func (c *Client) withToken(userID id.UserID, token string) (*mautrix.Client, error) {
	mx, err := mautrix.NewClient(c.baseURL, userID, token)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return mx, nil
}

// roomListResponse mirrors GET /_synapse/admin/v1/rooms.
type roomListResponse struct {
	Rooms []struct {
		RoomID id.RoomID `json:"room_id"`
		Name   string    `json:"name"`
	} `json:"rooms"`
	TotalRooms int `json:"total_rooms"`
}

// GetRoomID looks up a room by its human-readable name.
// Returns (id, true, nil) when a room with exactly that name exists,
// ("", false, nil) when none does, and a non-nil *APIError when the
// admin API call itself failed.
func (c *Client) GetRoomID(ctx context.Context, name, adminToken string) (id.RoomID, bool, error) {
	mx, err := c.withToken("", adminToken)
	if err != nil {
		return "", false, &APIError{Op: "get room id", Err: err}
	}

	var resp roomListResponse
	reqURL := mx.BuildURLWithQuery(mautrix.SynapseAdminURLPath{"v1", "rooms"}, map[string]string{
		"search_term": name,
	})
	_, err = mx.MakeFullRequest(ctx, mautrix.FullRequest{
		Method:       http.MethodGet,
		URL:          reqURL,
		ResponseJSON: &resp,
	})
	if err != nil {
		return "", false, wrapError("get room id", err)
	}

	// The search is a substring match server-side; require an exact name
	for _, room := range resp.Rooms {
		if room.Name == name {
			return room.RoomID, true, nil
		}
	}
	return "", false, nil
}

// CreateRoom creates a private room with the given name and returns its ID.
// The room is created by the identity behind adminToken.
func (c *Client) CreateRoom(ctx context.Context, name, adminToken string) (id.RoomID, error) {
	mx, err := c.withToken("", adminToken)
	if err != nil {
		return "", &APIError{Op: "create room", Err: err}
	}

	resp, err := mx.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Name:       name,
		Preset:     "private_chat",
		Visibility: "private",
	})
	if err != nil {
		return "", wrapError("create room", err)
	}

	c.logger.Info("created room", "name", name, "room_id", resp.RoomID)
	return resp.RoomID, nil
}

// registerNonceResponse mirrors GET /_synapse/admin/v1/register.
type registerNonceResponse struct {
	Nonce string `json:"nonce"`
}

// registerRequest mirrors POST /_synapse/admin/v1/register.
type registerRequest struct {
	Nonce    string `json:"nonce"`
	Username string `json:"username"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
	MAC      string `json:"mac"`
}

// registerResponse mirrors the register success body.
type registerResponse struct {
	AccessToken string    `json:"access_token"`
	UserID      id.UserID `json:"user_id"`
}

// RegisterUser creates an account via the shared-secret registration
// flow. The call is idempotent: when the account already exists the
// client logs in with the deterministically derived password and
// returns the existing identity's token instead of erroring. Callers
// must not do their own existence check first; the homeserver is the
// single source of truth.
func (c *Client) RegisterUser(ctx context.Context, localpart string, admin bool) (*User, error) {
	mx, err := c.withToken("", "")
	if err != nil {
		return nil, &APIError{Op: "register user", Err: err}
	}

	var nonceResp registerNonceResponse
	registerURL := mx.BuildURL(mautrix.SynapseAdminURLPath{"v1", "register"})
	_, err = mx.MakeFullRequest(ctx, mautrix.FullRequest{
		Method:       http.MethodGet,
		URL:          registerURL,
		ResponseJSON: &nonceResp,
	})
	if err != nil {
		return nil, wrapError("register user", err)
	}

	password := c.derivePassword(localpart)

	var resp registerResponse
	_, err = mx.MakeFullRequest(ctx, mautrix.FullRequest{
		Method: http.MethodPost,
		URL:    registerURL,
		RequestJSON: registerRequest{
			Nonce:    nonceResp.Nonce,
			Username: localpart,
			Password: password,
			Admin:    admin,
			MAC:      c.registrationMAC(nonceResp.Nonce, localpart, password, admin),
		},
		ResponseJSON: &resp,
	})
	if err != nil {
		apiErr := wrapError("register user", err)
		if apiErr.ErrCode != "M_USER_IN_USE" {
			return nil, apiErr
		}
		// Already registered on a previous pass; recover the credential
		return c.login(ctx, localpart, password, admin)
	}

	c.logger.Info("registered user", "localpart", localpart, "admin", admin)
	return &User{
		Localpart:   localpart,
		UserID:      c.userID(localpart, resp.UserID),
		AccessToken: resp.AccessToken,
		Admin:       admin,
	}, nil
}

// userID prefers the server-reported ID, falling back to constructing
// one from the configured server name.
func (c *Client) userID(localpart string, reported id.UserID) id.UserID {
	if reported != "" {
		return reported
	}
	return id.NewUserID(localpart, c.serverName)
}

// login obtains a fresh access token for an existing account.
func (c *Client) login(ctx context.Context, localpart, password string, admin bool) (*User, error) {
	mx, err := c.withToken("", "")
	if err != nil {
		return nil, &APIError{Op: "login", Err: err}
	}

	resp, err := mx.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: localpart,
		},
		Password:                 password,
		InitialDeviceDisplayName: "synapse-warden",
	})
	if err != nil {
		return nil, wrapError("login", err)
	}

	return &User{
		Localpart:   localpart,
		UserID:      c.userID(localpart, resp.UserID),
		AccessToken: resp.AccessToken,
		Admin:       admin,
	}, nil
}

// makeRoomAdminRequest mirrors POST .../rooms/{roomID}/make_room_admin.
type makeRoomAdminRequest struct {
	UserID id.UserID `json:"user_id"`
}

// MakeRoomAdmin promotes userID to administrator of roomID.
// adminToken must belong to a server admin; a user cannot grant itself
// admin rights.
func (c *Client) MakeRoomAdmin(ctx context.Context, userID id.UserID, roomID id.RoomID, adminToken string) error {
	mx, err := c.withToken("", adminToken)
	if err != nil {
		return &APIError{Op: "make room admin", Err: err}
	}

	reqURL := mx.BuildURL(mautrix.SynapseAdminURLPath{"v1", "rooms", roomID, "make_room_admin"})
	_, err = mx.MakeFullRequest(ctx, mautrix.FullRequest{
		Method:      http.MethodPost,
		URL:         reqURL,
		RequestJSON: makeRoomAdminRequest{UserID: userID},
	})
	if err != nil {
		return wrapError("make room admin", err)
	}

	c.logger.Info("granted room admin", "user_id", userID, "room_id", roomID)
	return nil
}

// overrideRateLimitRequest mirrors POST .../users/{userID}/override_ratelimit.
type overrideRateLimitRequest struct {
	MessagesPerSecond int `json:"messages_per_second"`
	BurstCount        int `json:"burst_count"`
}

// OverrideRateLimit sets a per-user rate-limit override so automated
// moderation actions aren't throttled.
func (c *Client) OverrideRateLimit(ctx context.Context, userID id.UserID, policy RateLimitPolicy, adminToken string) error {
	mx, err := c.withToken("", adminToken)
	if err != nil {
		return &APIError{Op: "override rate limit", Err: err}
	}

	reqURL := mx.BuildURL(mautrix.SynapseAdminURLPath{"v1", "users", userID, "override_ratelimit"})
	_, err = mx.MakeFullRequest(ctx, mautrix.FullRequest{
		Method: http.MethodPost,
		URL:    reqURL,
		RequestJSON: overrideRateLimitRequest{
			MessagesPerSecond: policy.MessagesPerSecond,
			BurstCount:        policy.BurstCount,
		},
	})
	if err != nil {
		return wrapError("override rate limit", err)
	}

	c.logger.Info("overrode rate limit", "user_id", userID,
		"messages_per_second", policy.MessagesPerSecond,
		"burst_count", policy.BurstCount,
	)
	return nil
}

// derivePassword derives a stable per-account password from the
// registration shared secret, so a later pass can log the account back
// in instead of failing on re-registration.
func (c *Client) derivePassword(localpart string) string {
	mac := hmac.New(sha256.New, []byte(c.sharedSecret))
	mac.Write([]byte(localpart))
	return hex.EncodeToString(mac.Sum(nil))
}

// registrationMAC computes the HMAC-SHA1 the shared-secret register
// endpoint mandates: nonce, username, password, and admin flag joined
// by NUL bytes.
func (c *Client) registrationMAC(nonce, username, password string, admin bool) string {
	mac := hmac.New(sha1.New, []byte(c.sharedSecret))
	mac.Write([]byte(nonce))
	mac.Write([]byte{0})
	mac.Write([]byte(username))
	mac.Write([]byte{0})
	mac.Write([]byte(password))
	mac.Write([]byte{0})
	if admin {
		mac.Write([]byte("admin"))
	} else {
		mac.Write([]byte("notadmin"))
	}
	return hex.EncodeToString(mac.Sum(nil))
}
