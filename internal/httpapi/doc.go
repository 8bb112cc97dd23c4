// Package httpapi exposes the callguard engine over HTTP. The push
// transport bridge posts decoded call and cancel signals here, the
// native call UI bridge reports lifecycle callbacks, and operators can
// inspect or reset dedup state. All routes except the health check
// require a bearer token signed with the configured secret.
package httpapi
