package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"stockcast/cmd/mockgen/engine"
)

func main() {
	scenario := flag.String("scenario", "steady", "Scenario to generate: steady, seasonal, intermittent, zero")
	products := flag.String("products", "SKU-001", "Comma-separated product ids")
	outDir := flag.String("out", "./demand", "Demand log directory")
	days := flag.Int("days", 180, "Number of days of history")
	base := flag.Float64("base", 20, "Base daily demand")
	trend := flag.Float64("trend", 0, "Units added to demand per day")
	noise := flag.Float64("noise", 0.2, "Noise standard deviation as a share of base demand")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	for i, id := range strings.Split(*products, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		cfg := engine.GeneratorConfig{
			Scenario:   *scenario,
			Days:       *days,
			BaseDemand: *base,
			Trend:      *trend,
			Noise:      *noise,
			Seed:       *seed + int64(i),
			Now:        time.Now(),
		}

		fmt.Printf("Generating scenario '%s' for %s (%d days, base %.1f) to %s...\n", cfg.Scenario, id, cfg.Days, cfg.BaseDemand, *outDir)

		records, err := engine.Generate(cfg)
		if err != nil {
			fmt.Printf("Failed to generate mock data: %v\n", err)
			os.Exit(1)
		}
		if err := engine.Save(*outDir, id, records); err != nil {
			fmt.Printf("Failed to save mock data: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Done.")
}
