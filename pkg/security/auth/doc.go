// Package auth protects Arbiter's administrative HTTP routes with API keys.
//
// Keys come from security.authentication in the configuration. A key is
// read from "Authorization: Bearer <key>" or "X-API-Key" unless other
// sources are configured. The key's user id becomes the actor recorded in
// the operations audit for policy changes, purges and reports.
package auth
