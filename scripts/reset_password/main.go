package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"dompet/pkg/auth"
	"dompet/pkg/config"
	"dompet/pkg/store"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	email := flag.String("email", "", "login email of the user to reset")
	password := flag.String("password", "", "new plaintext password (min 6 chars)")
	flag.Parse()
	if *email == "" || *password == "" {
		log.Fatal("--email and --password are required")
	}
	if len(*password) < 6 {
		log.Fatal("password too short (min 6)")
	}
	config.LoadDotEnv()
	db, err := store.OpenFromEnv()
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close(db)
	st := store.NewGorm(db)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	user, err := st.Users.FindByEmail(ctx, auth.NormalizeEmail(*email))
	if err != nil {
		log.Fatalf("user not found: %v", err)
	}
	hash, err := auth.HashPassword(*password, bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt: %v", err)
	}
	if _, err := st.Users.Update(ctx, user.ID, store.UserPatch{PasswordHash: hash}); err != nil {
		log.Fatalf("update failed: %v", err)
	}
	fmt.Printf("Password reset for user %s (id=%d)\n", user.Email, user.ID)
}
