// comptable-cli inspects ledger exports offline and runs a few operator tasks against the database.
//
// Usage (from backend directory):
//
//	go run ./cmd/comptable-cli extract-period GL_COMPTES.xlsx GL_TIERS.xlsx
//	go run ./cmd/comptable-cli detect-category "Grand Livre Tiers 2024.xlsx"
//	go run ./cmd/comptable-cli storage-prefix --client C1 --start 01/01/2024 --end 31/01/2024
//	DB_USER=... go run ./cmd/comptable-cli replay-outbox --batch <batchId>
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
