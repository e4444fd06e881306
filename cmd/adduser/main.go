package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/libreshelf/server/internal/auth"
	"github.com/libreshelf/server/internal/db"
	"github.com/libreshelf/server/internal/repo"
	_ "github.com/lib/pq"
)

// adduser creates an account with a bcrypt-hashed password. Accounts are
// provisioned by operators, not self-registered.
func main() {
	username := flag.String("username", "", "username for the new account (required)")
	email := flag.String("email", "", "email address")
	password := flag.String("password", "", "plaintext password (required; hashed before storage)")
	superuser := flag.Bool("superuser", false, "grant the privileged flag")
	flag.Parse()

	if *username == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load(".env")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	ctx := context.Background()
	database, err := db.Open(ctx, databaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	userRepo := repo.NewUserRepo(database)
	user, err := userRepo.Create(ctx, *username, *email, hash, *superuser)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Printf("created user %s (id=%s, superuser=%v)\n", user.Username, user.ID, user.IsSuperuser)
}
