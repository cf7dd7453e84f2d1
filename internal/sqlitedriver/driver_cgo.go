//go:build cgo

package sqlitedriver

import (
	_ "github.com/mutecomm/go-sqlcipher/v4" // registers "sqlite3" with SQLCipher support
)

// EncryptionSupported reports whether the registered driver honors
// PRAGMA key. The store refuses to open an encrypted database when this
// is false. True on cgo builds, where go-sqlcipher provides the driver.
const EncryptionSupported = true
