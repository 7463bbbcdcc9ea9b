// Package redis provides a Redis backend for storage.ClientStore and
// storage.GrantStore using go-redis. It accepts any redis.UniversalClient, so
// standalone, Sentinel and Cluster deployments are all supported; tests run
// against miniredis through NewWithClient.
//
// The key schema and the consume script are shared with storage/valkey, so
// both backends can operate on the same keyspace.
package redis
