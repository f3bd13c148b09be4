package main

import (
	"fmt"
	"os"

	"github.com/arnavshah/weekly-scheduler-go/pkg/auth"
	"github.com/arnavshah/weekly-scheduler-go/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: keygen <userID>")
		os.Exit(1)
	}

	cfg, err := config.Read(os.Getenv("SHIFT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.MasterSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: auth.api_master_secret (SHIFT_AUTH_API_MASTER_SECRET) is required")
		os.Exit(1)
	}

	userID := os.Args[1]
	key := auth.NewManager(&cfg.Auth).GenerateKey(userID)
	fmt.Printf("Generated Key for %s:\n%s\n", userID, key)
}
