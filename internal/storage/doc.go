// Package storage provides the durable key-value collaborator the dedup
// engine persists through. The KV interface is deliberately minimal
// (get/set/remove by string key) so the engine never depends on a
// concrete backend; SQLiteKV is the production implementation and
// MemoryKV serves as a test double with failure injection.
package storage
