package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

type dialect struct {
	name    string
	dollars bool
	schema  []string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{`
CREATE TABLE IF NOT EXISTS index_tasks (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    task_type         VARCHAR(32)  NOT NULL,
    object_type       VARCHAR(128) NOT NULL DEFAULT '',
    object_field      VARCHAR(128) NOT NULL DEFAULT '',
    value             TEXT         NOT NULL,
    related_object_id BIGINT       NOT NULL DEFAULT 0,
    priority          INTEGER      NOT NULL DEFAULT 0,
    server_name       VARCHAR(128) NOT NULL DEFAULT '',
    status            VARCHAR(16)  NOT NULL,
    error_message     TEXT         NOT NULL DEFAULT '',
    created_at        DATETIME     NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS index_tasks_next ON index_tasks (server_name, status, priority DESC, id)`,
	},
}

var postgresDialect = dialect{
	name:    "pgx",
	dollars: true,
	schema: []string{`
CREATE TABLE IF NOT EXISTS index_tasks (
    id                BIGSERIAL    PRIMARY KEY,
    task_type         VARCHAR(32)  NOT NULL,
    object_type       VARCHAR(128) NOT NULL DEFAULT '',
    object_field      VARCHAR(128) NOT NULL DEFAULT '',
    value             TEXT         NOT NULL,
    related_object_id BIGINT       NOT NULL DEFAULT 0,
    priority          INTEGER      NOT NULL DEFAULT 0,
    server_name       VARCHAR(128) NOT NULL DEFAULT '',
    status            VARCHAR(16)  NOT NULL,
    error_message     TEXT         NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ  NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS index_tasks_next ON index_tasks (server_name, status, priority DESC, id)`,
	},
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite":
		return sqliteDialect, nil
	case "pgx", "postgres":
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported db driver %q", driver)
}

// rebind rewrites ? placeholders into $n for drivers that need them.
func (d dialect) rebind(q string) string {
	if !d.dollars {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
