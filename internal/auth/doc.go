// Package auth provides bearer-token authentication for the callguard
// ingest API. Devices and transport bridges authenticate with JWT
// tokens signed with HS256 using the configured token_secret; the
// "sub" claim carries the device ID.
package auth
