package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/climate-api/internal/app"
	"github.com/chrissnell/climate-api/internal/constants"
	"github.com/chrissnell/climate-api/internal/log"
	"github.com/chrissnell/climate-api/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "", "Path to YAML configuration file (optional; defaults plus CLIMATE_* environment variables are used when empty)")
	envFile := flag.String("env-file", ".env", "Path to a .env file with CLIMATE_* overrides (ignored if missing)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("climate-api %s\n", constants.Version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Load configuration
	cfgData, err := config.NewYAMLProvider(*cfgFile, *envFile).LoadConfig()
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	// Create and run the application
	application := app.New(cfgData, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		log.Sync()
		os.Exit(1)
	}
}
