package db

import "embed"

// Migrations holds the goose SQL files so binaries and tests do not depend
// on the working directory.
//
//go:embed migrations/*.sql
var Migrations embed.FS
