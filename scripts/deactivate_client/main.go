package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"dompet/models"
	"dompet/pkg/config"
	"dompet/pkg/store"

	"gorm.io/gorm"
)

// Deactivates a client and its users. Expenses are kept unless -purge-expenses is set.
func main() {
	name := flag.String("client", "", "name of the active client to deactivate")
	purge := flag.Bool("purge-expenses", false, "also delete the client's expenses")
	dry := flag.Bool("dry-run", true, "Preview actions without modifying the DB")
	yes := flag.Bool("yes", false, "Confirm destructive action when dry-run=false")
	flag.Parse()
	if *name == "" {
		log.Fatal("--client is required")
	}

	config.LoadDotEnv()
	db, err := store.OpenFromEnv()
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}
	defer store.Close(db)
	st := store.NewGorm(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := st.Clients.FindActiveByName(ctx, *name)
	if err != nil {
		log.Fatalf("client lookup failed for %s: %v", *name, err)
	}
	users, err := st.Users.ListByClient(ctx, client.ID)
	if err != nil {
		log.Fatalf("user lookup failed: %v", err)
	}
	var expenses int64
	if err := db.WithContext(ctx).Model(&models.Expense{}).Where("client_id = ?", client.ID).Count(&expenses).Error; err != nil {
		log.Fatalf("expense count failed: %v", err)
	}

	fmt.Printf("Planned actions for client %s (id=%d):\n", client.Name, client.ID)
	fmt.Printf(" - Deactivate %d active users\n", len(users))
	fmt.Println(" - Deactivate the client (its name becomes available again)")
	if *purge {
		fmt.Printf(" - DELETE %d expenses\n", expenses)
	}
	if *dry {
		fmt.Println("dry-run: no changes made. Use --dry-run=false --yes to execute.")
		return
	}
	if !*yes {
		fmt.Println("Destructive! Pass --yes to proceed.")
		return
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if *purge {
			if err := tx.Where("client_id = ?", client.ID).Delete(&models.Expense{}).Error; err != nil {
				return fmt.Errorf("delete expenses: %w", err)
			}
		}
		if err := tx.Model(&models.User{}).Where("client_id = ?", client.ID).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate users: %w", err)
		}
		inTx := store.NewGorm(tx)
		if _, err := inTx.Clients.Deactivate(ctx, client.ID); err != nil {
			return fmt.Errorf("deactivate client: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("deactivation failed: %v", err)
	}
	fmt.Printf("client %s deactivated\n", client.Name)
}
