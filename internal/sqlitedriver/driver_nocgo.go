//go:build !cgo

package sqlitedriver

import (
	"database/sql"

	"modernc.org/sqlite"
)

func init() {
	sql.Register("sqlite3", &sqlite.Driver{})
}

// EncryptionSupported reports whether the registered driver honors
// PRAGMA key. The store refuses to open an encrypted database when this
// is false. False on pure-Go builds: modernc.org/sqlite accepts the
// pragma but does not encrypt.
const EncryptionSupported = false
