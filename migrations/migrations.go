// Package migrations embeds the schema migrations for each supported driver.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
