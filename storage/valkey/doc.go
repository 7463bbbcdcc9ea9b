// Package valkey provides a Valkey backend for storage.ClientStore and
// storage.GrantStore using valkey-go.
//
// Grants are written with SET NX PX so they expire on their own. Consuming a
// grant runs one Lua script that reads and deletes the grant and writes a
// tombstone for its remaining lifetime, so concurrent exchanges of the same
// grant see exactly one winner and replays report storage.ErrGrantConsumed.
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "oauth2:",
//	})
//
// With TLS:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:  "valkey.example.com:6379",
//	    Password: os.Getenv("VALKEY_PASSWORD"),
//	    TLS:      &tls.Config{MinVersion: tls.VersionTLS12},
//	})
package valkey
