// Package sqlitedriver registers a SQLite database/sql driver under the name
// "sqlite3". When built with CGO (the default on macOS/Linux) it uses
// go-sqlcipher, which supports SQLCipher encryption of the message store.
// When CGO is unavailable it falls back to the pure-Go modernc.org/sqlite
// driver — functional but without encryption support. Both drivers ship
// FTS5, which the message store requires for lexical search.
//
// Import this package for its side effects only:
//
//	import _ "github.com/teradata-labs/weft/internal/sqlitedriver"
package sqlitedriver
