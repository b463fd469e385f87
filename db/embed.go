// Package db provides the embedded, versioned database migrations.
package db

import "embed"

// Migrations holds the numbered SQL files applied in lexical order.
//
//go:embed migrations/*.sql
var Migrations embed.FS
