// Package memory provides an in-process implementation of storage.ClientStore
// and storage.GrantStore.
//
// Grants are consumed under a write lock and leave a tombstone until their
// original expiry, so a replayed grant id is reported as
// storage.ErrGrantConsumed. A background sweeper removes expired grants and
// tombstones; call Stop when the store is no longer needed.
//
//	store := memory.New()
//	defer store.Stop()
//	store.SetInstrumentation(inst)
//
// For multi-instance deployments use storage/valkey or storage/redis.
package memory
