// Package xapi models xAPI 1.0 statements and renders them to and from the
// JSON an LRS exchanges. It performs no I/O; see the xapisdk package for the
// HTTP transport.
package xapi

import _ "embed"

// StatementSchema is a JSON Schema (draft-07) for a single statement as this
// package serializes it.
//
//go:embed schema/statement.schema.json
var StatementSchema []byte

// StatementSchemaURL is the $id of StatementSchema.
const StatementSchemaURL = "https://xapikit.local/schema/statement.json"
