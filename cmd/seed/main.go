// seed inserts development sample data for local testing.
// Idempotent: accounts are upserted by email and the sample vehicle is reused by license plate.
// When JWT_PRIVATE_KEY is set it prints an access token for each account.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"fleet-tracker/internal/assignment"
	"fleet-tracker/internal/config"
	"fleet-tracker/internal/db"
	"fleet-tracker/internal/fleet/domain"
	fleetrepo "fleet-tracker/internal/fleet/repository"
	fleetservice "fleet-tracker/internal/fleet/service"
	"fleet-tracker/internal/security"
)

const (
	devPassword     = "password123"
	devLicensePlate = "AA-3-12345"
)

var devUsers = []domain.User{
	{Name: "Dev Admin", Email: "admin@example.com", Phone: "+251911000001", Role: domain.RoleAdmin},
	{Name: "Dawit Driver", Email: "driver@example.com", Phone: "+251911000002", Role: domain.RoleDriver},
	{Name: "Eden Employee", Email: "employee@example.com", Phone: "+251911000003", Role: domain.RoleEmployee},
	{Name: "Elias Employee", Email: "employee2@example.com", Phone: "+251911000004", Role: domain.RoleEmployee},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	repo := fleetrepo.NewPostgresRepository(conn)

	existing, err := repo.ListUsers(ctx, "")
	if err != nil {
		log.Fatalf("list users: %v", err)
	}
	storedHash := make(map[string]string, len(existing))
	for _, u := range existing {
		storedHash[u.Email] = u.PasswordHash
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	users := make([]*domain.User, len(devUsers))
	for i := range devUsers {
		u := devUsers[i]
		hash, reused, err := hasher.Reuse(storedHash[u.Email], []byte(devPassword))
		if err != nil {
			log.Fatalf("hash password for %s: %v", u.Email, err)
		}
		if !reused {
			log.Printf("seed: setting password for %s", u.Email)
		}
		u.PasswordHash = hash
		if err := repo.UpsertUser(ctx, &u); err != nil {
			log.Fatalf("upsert %s: %v", u.Email, err)
		}
		users[i] = &u
	}
	admin, driver, employees := users[0], users[1], users[2:]

	// The registry is throwaway here; a running server picks the change up on its next refresh.
	registry := assignment.NewRegistry()
	if err := registry.Load(ctx, repo); err != nil {
		log.Fatalf("load registry: %v", err)
	}
	svc := fleetservice.NewVehicleService(repo, repo, registry, nil)

	vehicle, err := findByPlate(ctx, svc, devLicensePlate)
	if err != nil {
		log.Fatalf("list vehicles: %v", err)
	}
	if vehicle == nil {
		vehicle, err = svc.Create(ctx, admin.ID, fleetservice.VehicleInput{Type: "Minibus", LicensePlate: devLicensePlate, DriverID: &driver.ID})
		if err != nil {
			log.Fatalf("create vehicle: %v", err)
		}
	}
	for _, e := range employees {
		if _, err := svc.AssignEmployee(ctx, admin.ID, vehicle.ID, e.ID); err != nil && !errors.Is(err, fleetservice.ErrAlreadyAssigned) {
			log.Fatalf("assign employee %s: %v", e.Email, err)
		}
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Vehicle %s (id %s): driver %s, %d employees\n", devLicensePlate, vehicle.ID, driver.Email, len(employees))
	for _, u := range users {
		fmt.Printf("%-9s %-24s id=%s password=%s\n", u.Role, u.Email, u.ID, devPassword)
	}

	if cfg.JWTPrivateKey == "" {
		return
	}
	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	tokens := security.NewTokenProvider(signer, signer.Public(), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	for _, u := range users {
		token, exp, err := tokens.IssueAccess(u.ID, u.Role)
		if err != nil {
			log.Fatalf("issue token for %s: %v", u.Email, err)
		}
		fmt.Printf("\n%s token (expires %s):\n%s\n", u.Email, exp.Format("15:04:05 MST"), token)
	}
}

func findByPlate(ctx context.Context, svc *fleetservice.VehicleService, plate string) (*domain.Vehicle, error) {
	vehicles, err := svc.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range vehicles {
		if v.LicensePlate == plate {
			return v, nil
		}
	}
	return nil, nil
}
