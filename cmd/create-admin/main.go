package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/database"
	"github.com/stemsi/ieltsmock-backend/internal/logger"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	var role string
	flag.StringVar(&role, "role", string(model.AdminRoleAdmin), "Account role: admin or owner")
	flag.Parse()

	adminRole := model.AdminRole(strings.ToLower(role))
	if adminRole != model.AdminRoleAdmin && adminRole != model.AdminRoleOwner {
		fmt.Println("Error: role must be admin or owner")
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	// Only password hashing is used here, so the in-process broker is enough.
	authService := service.NewAuthService(cfg, broker.NewLocal())
	adminService := service.NewAdminService(repository.NewAdminRepository(pool), authService, log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("=== Create New %s Account ===\n", strings.ToUpper(string(adminRole[:1]))+string(adminRole[1:]))

	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	admin, err := adminService.CreateAccount(ctx, email, name, password, adminRole)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin")
	}

	fmt.Printf("\nSuccess! %s '%s' (%s) created with ID: %d\n", admin.Role, admin.Name, admin.Email, admin.ID)
}
