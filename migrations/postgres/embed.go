// Package migrations embeds SQL migration files.
package migrations

import "embed"

// BrokerFS contains the broker schema migrations.
//
//go:embed broker/*.sql
var BrokerFS embed.FS

// BrokerDir is the directory within BrokerFS where migrations live.
const BrokerDir = "broker"
