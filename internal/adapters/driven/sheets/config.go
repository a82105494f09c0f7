package sheets

import (
	"fmt"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

// TabConfig locates one entity type inside the spreadsheet.
type TabConfig struct {
	// Name is the sheet tab, e.g. "Sellers".
	Name string
	// KeyColumn is the header of the business key column. Rows with a blank
	// value in this column are skipped, not failed.
	KeyColumn string
}

// Config holds configuration for the Sheets source reader.
type Config struct {
	SpreadsheetID   string
	CredentialsFile string
	// Tabs maps entity types to their spreadsheet tabs (default: DefaultTabs).
	Tabs map[domain.EntityType]TabConfig
}

// DefaultTabs matches the back-office spreadsheet layout.
func DefaultTabs() map[domain.EntityType]TabConfig {
	return map[domain.EntityType]TabConfig{
		domain.EntitySellers:  {Name: "Sellers", KeyColumn: "seller_number"},
		domain.EntityBuyers:   {Name: "Buyers", KeyColumn: "buyer_number"},
		domain.EntityListings: {Name: "Listings", KeyColumn: "listing_number"},
	}
}

// Validate checks the config for required fields.
func (c Config) Validate() error {
	if c.SpreadsheetID == "" {
		return fmt.Errorf("spreadsheet ID is required")
	}
	if c.CredentialsFile == "" {
		return fmt.Errorf("credentials file is required")
	}
	return nil
}
