package repository

import _ "embed"

// Schema creates the tables used by the crawler. Every statement is idempotent.
//
//go:embed schema.sql
var Schema string
