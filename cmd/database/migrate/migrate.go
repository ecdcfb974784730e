package migration

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"receipto/entities"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entities.User{}); err != nil {
		log.Fatalf("Error migrating user database: %v", err)
		return err
	}
	if err := db.AutoMigrate(&entities.Receipt{}); err != nil {
		log.Fatalf("Error migrating receipt database: %v", err)
		return err
	}
	if err := db.AutoMigrate(&entities.ReceiptImage{}); err != nil {
		log.Fatalf("Error migrating receipt image database: %v", err)
		return err
	}
	if err := db.AutoMigrate(&entities.PointLog{}); err != nil {
		log.Fatalf("Error migrating point log database: %v", err)
		return err
	}
	if err := db.AutoMigrate(&entities.PointClaim{}); err != nil {
		log.Fatalf("Error migrating point claim database: %v", err)
		return err
	}

	fmt.Println("Database migration complete")
	return nil
}
