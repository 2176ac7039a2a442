// internal/repository/migrate.go
package repository

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/models"
)

// Models lists every persisted entity in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.IPAsset{},
		&models.LicenseTerms{},
		&models.LicenseApplication{},
		&models.Product{},
		&models.AuthorizationChain{},
		&models.Transaction{},
	}
}

// Migrate creates or updates the schema on db.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return createIndexes(db)
}

func createIndexes(db *gorm.DB) error {
	// at most one active chain per product
	required := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_authorization_chains_active_product ON authorization_chains(product_id) WHERE is_active",
	}
	for _, index := range required {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_ip_assets_category_status ON ip_assets(category, status)",
		"CREATE INDEX IF NOT EXISTS idx_ip_assets_created_at ON ip_assets(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_products_category_status ON products(category, status)",
		"CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_type_status ON transactions(transaction_type, status)",
		"CREATE INDEX IF NOT EXISTS idx_license_applications_asset_applicant ON license_applications(ip_asset_id, applicant_id)",
		"CREATE INDEX IF NOT EXISTS idx_license_applications_status_expiry ON license_applications(status, expires_at)",
	}
	if db.Dialector.Name() == "postgres" {
		indexes = append(indexes,
			"CREATE INDEX IF NOT EXISTS idx_ip_assets_search ON ip_assets USING GIN(to_tsvector('english', title || ' ' || description))",
			"CREATE INDEX IF NOT EXISTS idx_products_search ON products USING GIN(to_tsvector('english', title || ' ' || description))",
		)
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}
	return nil
}
