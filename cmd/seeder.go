package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/momo-collections/internal/core/datamodel/appointment"
	"github.com/frahmantamala/momo-collections/internal/core/datamodel/patient"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with patients and unpaid appointments for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := clearSeedData(db); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared payments, appointments and patients")
		}

		// Phone suffixes drive the sandbox gateway: 0000 fails, 1111 cancels,
		// 9999 stays pending, anything else succeeds.
		patients := []patient.Patient{
			{ID: "pat-1", FullName: "Amina Nakato", PhoneNumber: "0772123456"},
			{ID: "pat-2", FullName: "Brian Okello", PhoneNumber: "0752120000"},
			{ID: "pat-3", FullName: "Claire Atim", PhoneNumber: "0701121111"},
			{ID: "pat-4", FullName: "David Mugisha", PhoneNumber: "0392129999"},
		}

		for _, p := range patients {
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
				log.Fatalf("failed to insert patient %s: %v", p.ID, err)
			}
			fmt.Println("Seeded patient:", p.ID, p.FullName)
		}

		start := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
		for i, p := range patients {
			for j := 0; j < 2; j++ {
				a := appointment.Appointment{
					ID:            fmt.Sprintf("apt-%d-%d", i+1, j+1),
					PatientID:     p.ID,
					ScheduledAt:   start.Add(time.Duration(i*2+j) * time.Hour),
					PaymentStatus: appointment.PaymentStatusUnpaid,
					PaymentIDs:    []int64{},
				}
				if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&a).Error; err != nil {
					log.Fatalf("failed to insert appointment %s: %v", a.ID, err)
				}
				fmt.Printf("Seeded appointment: %s for %s\n", a.ID, p.ID)
			}
		}

		fmt.Println("Seed data ready; issue a token with `token --user pat-1`")
	},
}

func clearSeedData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"webhook_events", "payments", "appointments", "patients"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
