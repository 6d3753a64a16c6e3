package persistence

import (
	"fmt"

	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// ledgerIndexes are unique indexes over columns of embedded base models,
// which struct tags cannot express. The SQL is valid on Postgres and SQLite.
var ledgerIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_journal_entries_reference ON journal_entries (tenant_id, company_id, reference)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_fiscal_periods_code ON fiscal_periods (tenant_id, company_id, code)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_entries_period_status ON journal_entries (tenant_id, company_id, period_code, status)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_entries_reversal_of ON journal_entries (reversal_of_id)`,
}

// AutoMigrateLedger creates or updates the ledger schema from the models.
// Deployed databases are migrated with the SQL files under migrations/;
// this is for tests and local development.
func AutoMigrateLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllLedgerModels()...); err != nil {
		return fmt.Errorf("auto-migrate ledger models: %w", err)
	}
	for _, stmt := range ledgerIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create ledger index: %w", err)
		}
	}
	return nil
}
