// Package callstate defines the call lifecycle domain model: the closed
// set of call statuses, the validated transition table between them, and
// the entry types tracked by the dedup engine for processed calls and
// cancelled rooms.
package callstate
