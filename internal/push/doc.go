// Package push bridges decoded incoming-call push payloads to the dedup
// engine and the native call UI. The Handler is the enforcement point
// for the ghost-call rules: nothing user-visible happens unless the
// engine approves the signal first. Lifecycle callbacks from the call
// UI flow back through the same handler.
package push
