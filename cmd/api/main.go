package main

import (
	"log"
	"net/http"

	"github.com/mcclellann/agencyCRM/pkg/agency"
	"github.com/mcclellann/agencyCRM/pkg/config"
	"github.com/mcclellann/agencyCRM/pkg/provision"
	"github.com/mcclellann/agencyCRM/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	if _, err := provision.EnsureAdmin(sqliteStore, provision.Admin{
		Email:       cfg.AdminEmail,
		Password:    cfg.AdminPassword,
		DisplayName: cfg.AdminName,
	}); err != nil {
		log.Fatalf("Failed to provision admin account: %v", err)
	}

	svc := agency.NewService(sqliteStore, agency.Options{
		DefaultBonus: cfg.DefaultBonus,
		Targets:      cfg.Targets,
	})
	if err := svc.Bootstrap(); err != nil {
		log.Fatalf("Failed to load agency data: %v", err)
	}

	server := NewServer(svc)

	log.Printf("Server starting on %s", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, server.Routes()))
}
