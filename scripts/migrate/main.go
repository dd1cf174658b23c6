// Command migrate creates the keyspace and tables. Run once before starting
// the services; safe to re-run, every statement is IF NOT EXISTS.
package main

import (
	"flag"
	"log"

	"github.com/hivedesk/messaging/pkg/config"
	"github.com/hivedesk/messaging/pkg/db"
)

func main() {
	drop := flag.Bool("drop", false, "drop all tables instead of creating them")
	flag.Parse()

	cfg := config.Load()

	if err := db.EnsureKeyspace(cfg.ScyllaHosts, cfg.ScyllaKeyspace); err != nil {
		log.Fatalf("ensure keyspace: %v", err)
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer session.Close()

	if *drop {
		if err := db.Drop(session); err != nil {
			log.Fatalf("drop: %v", err)
		}
		log.Println("tables dropped")
		return
	}

	if err := db.Migrate(session); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("schema up to date")
}
