// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/teradata-labs/weft/pkg/wefterr"
)

// mapSQLError classifies driver errors into wefterr kinds. Both registered
// drivers report conditions through error text, so classification matches
// on the SQLite result-code names present in both.
func mapSQLError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return wefterr.Wrap(wefterr.KindNotFound, err, "%s: no such row", op)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "SQLITE_BUSY"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"):
		return wefterr.Wrap(wefterr.KindBusy, err, "%s: database busy", op)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return wefterr.Wrap(wefterr.KindAlreadyExists, err, "%s: row already exists", op)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"),
		strings.Contains(msg, "CHECK constraint failed"),
		strings.Contains(msg, "NOT NULL constraint failed"):
		return wefterr.Wrap(wefterr.KindConflict, err, "%s: constraint violation", op)
	default:
		return wefterr.Wrap(wefterr.KindInternal, err, "%s failed", op)
	}
}
