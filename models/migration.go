package models

import (
	"log"

	"github.com/AngeKano/repfi/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Client{},
		&ComptablePeriod{},
		&File{}, &FileHistory{},
		&DispatchIntent{},
		&OutboxEvent{},
	)
}
