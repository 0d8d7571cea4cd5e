// Package db embeds the SQL migration files applied at startup.
package db

import "embed"

// Migrations holds the versioned schema migrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS
