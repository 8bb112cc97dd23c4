// Package dedupe implements the incoming-call deduplication engine that
// protects the device from ghost calls: duplicated, out-of-order, or
// already-cancelled incoming-call signals.
//
// The engine tracks two TTL-bounded maps. Processed calls are keyed by
// call ID (one entry per ring attempt) and carry the call's lifecycle
// status; cancelled rooms are keyed by room ID and block any ring for
// that room while the entry is live. ShouldProcessCall is the single
// gate callers must pass before triggering anything user-visible.
//
// Both maps are mirrored to an injected storage.KV so decisions survive
// process restarts. The in-memory maps are authoritative while the
// process is alive; persistence is asynchronous and best-effort, and
// entries past their TTL are ignored on load, at read time, and swept
// periodically in the background.
package dedupe
