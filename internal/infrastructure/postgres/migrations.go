package postgres

import "embed"

// Migrations holds the ledger schema, applied with pkg/postgres.RunMigrations
// using MigrationsDir.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations holding the SQL files.
const MigrationsDir = "migrations"
