// Package models contains the GORM persistence models of the ledger tables.
// They stay separate from the domain types; each model converts with
// ToDomain and a FromDomain constructor.
//
// Structure:
// - base.go: shared columns (ids, timestamps, version, tenant)
// - ledger.go: accounts, entries, routes, ledger lines, postings, periods, snapshots, sequences
// - outbox.go: audit outbox rows consumed by the dispatcher
package models
