package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"dpm-server/cmd/mockgen/engine"
)

func main() {
	scenario := flag.String("scenario", "pipeline", "Scenario to generate: pipeline, layered, contention")
	count := flag.Int("count", 60, "Number of activities to generate")
	seed := flag.Int64("seed", 1, "PRNG seed for reproducible fixtures")
	outDir := flag.String("out", "./.cache", "Output directory for fixture files")
	flag.Parse()

	cfg := engine.GeneratorConfig{
		Scenario: *scenario,
		Count:    *count,
		Seed:     *seed,
		Start:    time.Now(),
	}

	fmt.Printf("Generating scenario '%s' (Count: %d, Seed: %d) to %s...\n", cfg.Scenario, cfg.Count, cfg.Seed, *outDir)

	fixture := engine.Generate(cfg)

	if err := engine.Save(*outDir, fixture); err != nil {
		fmt.Printf("Failed to save fixture: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Done.")
}
