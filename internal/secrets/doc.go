// Package secrets persists deployment-scoped secrets in SQLite.
//
// The store holds the admin API access token and a cached copy of the
// moderation bot's credential, keyed by name. Values are opaque and
// never logged. An in-memory implementation backs tests.
package secrets
