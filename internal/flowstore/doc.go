// Package flowstore provides persistent authflow.FlowStore backends.
//
// A suspended flow holds protocol bindings (OAuth2 state and PKCE verifier),
// so every backend treats entries as secrets: files are owner-only, keys are
// hashed and values are never logged. Take is destructive in every backend,
// which makes a correlation token single-use even when several processes
// race for it.
//
// Backends:
//   - FileStore: one JSON file per flow in a local directory
//   - RedisStore: Redis keys with a TTL, taken with GETDEL
package flowstore
