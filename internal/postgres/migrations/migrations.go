// Package migrations embeds the schema files applied by the migrate command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in apply order.
var Files = []string{
	"001_create_work_records.sql",
	"002_create_scheduler.sql",
	"003_create_platform.sql",
}
