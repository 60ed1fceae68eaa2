// migrate applies the embedded schema migrations (users, vehicles, assignments, last
// positions, audit logs, join policies): go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"log"

	"fleet-tracker/internal/config"
	"fleet-tracker/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Fatalf("%v", err)
	}
}
