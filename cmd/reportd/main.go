// Package main provides the CLI entry point for reportd.
//
// reportd serves configured SQL reports over stdio, using NDJSON format for
// communication.
//
// Usage:
//
//	reportd [command] [flags]
//
// Commands:
//
//	serve     Serve requests from stdin, writing responses to stdout
//	reports   List the configured reports
//	params    Resolve and print the parameters of a report
//	version   Show version information
//
// Each request/response is a JSON object on a single line (NDJSON format).
//
// Example request:
//
//	{"id":"req-001","method":"report.run","params":{"report":"mssql-test","params":{"StartDate":"2024-03-01","EndDate":"2024-03-31"}}}
//
// Example response:
//
//	{"id":"req-001","success":true,"result":{"data":[{"Durchfuehrender":"Meier","Anzahl":3}],"page":1,"page_size":10}}
package main

import (
	"fmt"
	"os"

	// Register database drivers
	_ "github.com/mantis/reportd/internal/driver/duckdb"
	_ "github.com/mantis/reportd/internal/driver/mssql"
	_ "github.com/mantis/reportd/internal/driver/mysql"
	_ "github.com/mantis/reportd/internal/driver/postgres"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
