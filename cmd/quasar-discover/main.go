// quasar-discover resolves the Resque targets the daemon would poll and
// prints them without polling.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gravito-framework/quasar-resque/internal/bootstrap"
	"github.com/gravito-framework/quasar-resque/pkg/config"
	"github.com/gravito-framework/quasar-resque/pkg/discovery"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	if err := config.LoadEnvFiles(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	targets, err := bootstrap.Targets(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Total targets: %d\n", len(targets))
	for _, id := range discovery.SortedIDs(targets) {
		t := targets[id]
		ns := t.Namespace
		if ns == "" {
			ns = cfg.Poll.Namespace
		}
		fmt.Printf("  %-40s %-28s namespace=%s label=%s\n", id, t.Redis, ns, t.Label())
	}
}
