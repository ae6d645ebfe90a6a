// Package db carries the SQL schema, embedded so the binary migrates itself
// on startup without shipping migration files alongside it.
package db

import _ "embed"

// Schema is the DDL for the payment session store. It is written to be
// re-runnable: every statement guards with IF NOT EXISTS.
//
//go:embed migrations/001_schema.sql
var Schema string
