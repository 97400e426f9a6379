package model

import "gorm.io/gorm"

// Migrate creates the tables of the development server and the cache
// snapshots.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Link{}, &Vote{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		return err
	}

	return nil
}
