package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"dompet/pkg/apperr"
	"dompet/pkg/auth"
	"dompet/pkg/config"
	"dompet/pkg/store"
	"dompet/pkg/user"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	clientName := flag.String("client", "", "name of the active client the user joins")
	email := flag.String("email", "", "login email (needed for a password)")
	username := flag.String("telegram-username", "", "Telegram username for chat commands")
	noPassword := flag.Bool("no-password", false, "create a chat-only user without prompting for a password")
	flag.Parse()
	if *clientName == "" || (*email == "" && *username == "") {
		fmt.Println("usage: go run ./cmd/create_user -client <name> [-email <email>] [-telegram-username <name>] [-no-password]")
		os.Exit(2)
	}

	config.LoadDotEnv()
	db, err := store.OpenFromEnv()
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer store.Close(db)
	st := store.NewGorm(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := st.Clients.FindActiveByName(ctx, strings.TrimSpace(*clientName))
	if err != nil {
		log.Fatalf("client %q not found: %v", *clientName, err)
	}

	in := user.CreateInput{Email: *email, TelegramUsername: *username}
	if *email != "" && !*noPassword {
		pw, err := readPassword()
		if err != nil {
			log.Fatalf("read password: %v", err)
		}
		in.Password = pw
	}

	svc := user.New(st, bcrypt.DefaultCost, nil)
	u, err := svc.Create(ctx, auth.Identity{ClientID: client.ID}, in)
	if errors.Is(err, apperr.ErrConflict) {
		fmt.Printf("user already exists in an active client: %v\n", err)
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user id=%d client=%s (id=%d)\n", u.ID, client.Name, client.ID)
}

// readPassword prompts twice on a terminal, or reads one line from a pipe.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", err
		}
		return line, nil
	}
	fmt.Print("Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	fmt.Print("Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
