package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gravito-framework/quasar-resque/pkg/types"
	"github.com/redis/go-redis/v9"
)

// ReadPayloads returns every payload currently published under KeyPrefix,
// sorted by agent. Keys that expire between SCAN and GET are skipped.
func ReadPayloads(ctx context.Context, client *redis.Client) ([]types.ReportPayload, error) {
	var payloads []types.ReportPayload

	iter := client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}

		var p types.ReportPayload
		if err := json.Unmarshal(val, &p); err != nil {
			return nil, fmt.Errorf("invalid payload at %s: %w", key, err)
		}
		payloads = append(payloads, p)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan reports: %w", err)
	}

	sort.Slice(payloads, func(i, j int) bool {
		return payloads[i].Agent < payloads[j].Agent
	})
	return payloads, nil
}
