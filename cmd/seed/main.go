package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"meddoc-assistant/internal/config"
	pg "meddoc-assistant/internal/infra/db/postgres"
	"meddoc-assistant/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	patientRepo := pg.NewPatientRepo(pool)
	patientUC := usecase.NewPatientUseCase(patientRepo)

	// If patients already exist, do nothing
	patients, err := patientUC.List(ctx)
	if err != nil {
		log.Fatalf("list patients: %v", err)
	}
	if len(patients) > 0 {
		fmt.Printf("%d patients already present. No changes.\n", len(patients))
		for _, p := range patients {
			fmt.Printf("  - %s (id=%s)\n", p.DisplayName, p.ID)
		}
		return
	}

	seed := []string{
		"Jane Doe",
		"John Smith",
		"Maria Gonzalez",
	}

	for _, name := range seed {
		p, err := patientUC.Create(ctx, name)
		if err != nil {
			log.Fatalf("create patient %q: %v", name, err)
		}
		fmt.Printf("seeded: %s (id=%s)\n", p.DisplayName, p.ID)
	}

	fmt.Println("Seeding complete.")
}
