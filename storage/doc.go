// Package storage defines the client registry and grant persistence used by
// the reference host.
//
//   - ClientStore: registered clients, bcrypt client secrets, exact redirect URIs
//   - GrantStore: single-use authorization grants with an expiry
//
// Implementations are provided in subpackages:
//   - storage/memory: in-process maps, for development and single instances
//   - storage/valkey: Valkey via valkey-go
//   - storage/redis: Redis via go-redis
package storage
