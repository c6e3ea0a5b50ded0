/*

Package permitloader is a small batch ETL tool to load monthly open data
archives into an analytical warehouse such as MotherDuck or BigQuery.

Each calendar month is published as a zip archive. For every requested month
the loader fetches the archive, validates a sample against a fixed schema
contract, renames columns to canonical names, creates the destination table
"{MM}_{YYYY}" if it is absent and inserts the rows in fixed-size chunks.

Getting started

Build a Loader with a credential provider and a warehouse connector, then run
a historic range or the latest month.

	package main

	import (
		"context"

		"go.nownabe.dev/permitloader"
		"go.nownabe.dev/permitloader/secrets"
		"go.nownabe.dev/permitloader/warehouse"
	)

	func main() {
		loader, err := permitloader.New(
			permitloader.WithCredentials(&secrets.AWSSecretsManager{Name: "streetmanagerpipeline"}),
			permitloader.WithConnector(warehouse.MotherDuck()),
			permitloader.WithLogLevel("info"),
		)
		if err != nil {
			panic(err)
		}

		// Load January to December 2021 into the schema stored under "schema_21",
		// 75000 rows per insert.
		if _, err := loader.RunHistoric(context.Background(), "schema_21", 75000, 2021, 1, 12); err != nil {
			panic(err)
		}
	}

Loads are append only. Running the same month twice inserts its rows twice.

*/
package permitloader
