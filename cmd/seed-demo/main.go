package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/database"
	"github.com/stemsi/ieltsmock-backend/internal/logger"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
	"github.com/stemsi/ieltsmock-backend/internal/service"
)

// Seeds one admin, an active demo test with a batch of keys, and a set of
// registered students for local testing.
func main() {
	var (
		adminEmail string
		keyCount   int
		students   int
	)
	flag.StringVar(&adminEmail, "admin", "demo-admin@example.com", "Email of the demo admin (created if missing)")
	flag.IntVar(&keyCount, "keys", 20, "Number of test keys to generate")
	flag.IntVar(&students, "students", 10, "Number of student accounts to register")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	b := broker.NewLocal()
	authService := service.NewAuthService(cfg, b)
	monitorService := service.NewMonitorService(store, b, log)
	adminService := service.NewAdminService(store.Admins, authService, log)
	testService := service.NewTestService(store, monitorService, log)
	keyService := service.NewTestKeyService(cfg, store.Keys, store.Tests, log)
	studentService := service.NewStudentService(store.Students, store.Attempts, authService, log)

	// ─── Admin ────────────────────────────────────────────────────────
	admin, err := store.Admins.GetByEmail(ctx, adminEmail)
	if errors.Is(err, repository.ErrNotFound) {
		admin, err = adminService.CreateAccount(ctx, adminEmail, "Demo Admin", "demo1234", model.AdminRoleAdmin)
		if err == nil {
			fmt.Printf("Created admin %s (password: demo1234)\n", adminEmail)
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve demo admin")
	}

	// ─── Test ─────────────────────────────────────────────────────────
	fmt.Println("=== Seeding Demo Test ===")
	test, err := testService.Create(ctx, admin.ID, &model.CreateTestRequest{
		Title:       "IELTS Academic Demo",
		Description: "Seeded demo test",
		Type:        "academic",
		Reading:     demoSection("reading"),
		Listening:   demoSection("listening"),
		Writing:     demoSection("writing"),
		AnswerKey: model.AnswerKey{
			model.SectionReading:   {"1": "TRUE", "2": "B", "3": "water|H2O"},
			model.SectionListening: {"1": "C", "2": "library"},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create demo test")
	}
	if _, err := testService.StartMock(ctx, test.ID, admin.ID); err != nil {
		log.Fatal().Err(err).Msg("Failed to start demo test")
	}

	keys, err := keyService.GenerateBatch(ctx, test.ID, admin.ID, keyCount)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate keys")
	}
	fmt.Printf("Test %s is active with %d keys:\n", test.ID, len(keys))
	for _, k := range keys {
		fmt.Println("  " + k.Key)
	}

	// ─── Students ─────────────────────────────────────────────────────
	fmt.Printf("\n=== Seeding %d Students ===\n", students)
	successCount := 0
	for i := range students {
		_, err := studentService.Register(ctx, &model.StudentRegisterRequest{
			Email:    fmt.Sprintf("student%d@example.com", i+1),
			FullName: fmt.Sprintf("Demo Student %d", i+1),
			Password: "student123",
		})
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, apperr.ErrConflict):
			// Already seeded.
		default:
			fmt.Printf("Error creating student %d: %v\n", i+1, err)
		}
	}

	fmt.Printf("\nSeed completed! Added %d/%d students (password: student123).\n", successCount, students)
}

func demoSection(name string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"title":     "Demo " + name,
		"questions": []map[string]string{{"id": "1", "prompt": "Sample question"}},
	})
	return raw
}
