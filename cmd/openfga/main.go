package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"holylandtour/internal/config"
	"holylandtour/internal/logger"
	"holylandtour/internal/openfga"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cfg := config.NewConfig()
	log := logger.New(cfg)

	fgaClient, err := openfga.NewManagementClient(log.Logger, cfg.OpenFGA)
	if err != nil {
		log.Error("Failed to create OpenFGA client", "error", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create-store":
		fs := flag.NewFlagSet("create-store", flag.ExitOnError)
		name := fs.String("name", "holylandtour", "Store name")
		fs.Parse(os.Args[2:])

		id, err := fgaClient.CreateStore(ctx, *name)
		if err != nil {
			log.Error("Failed to create store", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Created store with ID: %s\nSet OPENFGA_STORE_ID=%s and run write-model.\n", id, id)
	case "write-model":
		if cfg.OpenFGA.StoreID == "" {
			fmt.Println("OPENFGA_STORE_ID is required")
			os.Exit(1)
		}
		modelID, err := fgaClient.WriteAuthorizationModel(ctx)
		if err != nil {
			log.Error("Failed to write model", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Authorization model written with ID: %s\nSet OPENFGA_AUTHORIZATION_MODEL_ID=%s.\n", modelID, modelID)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: openfga <command>")
	fmt.Println("Commands:")
	fmt.Println("  create-store [-name NAME]  Create a new OpenFGA store")
	fmt.Println("  write-model                Write the admin dashboard model to OPENFGA_STORE_ID")
}
