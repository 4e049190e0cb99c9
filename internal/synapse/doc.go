// Package synapse is a thin client for the Synapse admin API.
//
// It covers only the calls the warden needs to provision the
// moderation add-on: room lookup and creation, shared-secret user
// registration, room admin grants, and per-user rate-limit overrides.
// Every call takes the authorizing token explicitly; the client holds
// no credential state.
//
// All failures surface as *APIError, which carries the HTTP status and
// Matrix errcode so callers can distinguish auth failures from
// transport problems.
package synapse
