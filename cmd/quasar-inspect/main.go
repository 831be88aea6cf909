// quasar-inspect prints the reports currently published to the transport Redis.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	internalredis "github.com/gravito-framework/quasar-resque/internal/redis"
	"github.com/gravito-framework/quasar-resque/pkg/config"
	"github.com/gravito-framework/quasar-resque/pkg/report"
	"github.com/gravito-framework/quasar-resque/pkg/types"
)

func main() {
	url := flag.String("url", "", "Transport Redis (default: $QUASAR_TRANSPORT_REDIS_URL, $QUASAR_REDIS_URL or localhost:6379)")
	raw := flag.Bool("raw", false, "Print the raw JSON payloads")
	flag.Parse()

	if err := config.LoadEnvFiles(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := internalredis.NewClient(ctx, transportURL(*url), internalredis.TimeoutsFor(5*time.Second))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	payloads, err := report.ReadPayloads(ctx, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d Resque agents:\n\n", len(payloads))
	now := time.Now()
	for i := range payloads {
		p := &payloads[i]
		if *raw {
			data, _ := json.MarshalIndent(p, "", "  ")
			fmt.Println(string(data))
			continue
		}
		printPayload(p, now)
	}
}

func transportURL(flagURL string) string {
	for _, u := range []string{flagURL, os.Getenv("QUASAR_TRANSPORT_REDIS_URL"), os.Getenv("QUASAR_REDIS_URL")} {
		if u != "" {
			return u
		}
	}
	return "localhost:6379"
}

func printPayload(p *types.ReportPayload, now time.Time) {
	fmt.Printf("📍 Agent: %s (%s)\n", p.Agent, p.Label)
	fmt.Printf("   Reported: %s ago\n", p.Age(now).Round(time.Second))

	if alive, _ := p.Value("Redis/Alive"); alive == 0 {
		fmt.Printf("   Redis: DOWN\n\n")
		return
	}
	for _, m := range p.Metrics {
		fmt.Printf("   %-28s %10.2f %s\n", m.Name, m.Value, m.Unit)
	}

	if c := p.Collector; c != nil {
		fmt.Printf("   Collector: %s pid=%d cpu=%.1f%% rss=%.1f MB\n",
			c.Hostname, c.PID, c.CPU.Process, float64(c.Memory.ProcessRSS)/1024/1024)
	}
	fmt.Println()
}
