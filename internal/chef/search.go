// Package chef searches a Chef server for Redis nodes.
package chef

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-chef/chef"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gravito-framework/quasar-resque/pkg/discovery"
)

// Attribute paths read through partial search
var partialKeys = map[string]interface{}{
	"fqdn":         []string{"fqdn"},
	"redis_master": []string{"yotpo_server", "redis_master"},
	"instances":    []string{"yotpo_server", "yotpo-redis", "instances"},
}

// Options describe how to reach and authenticate against the Chef server
type Options struct {
	ServerURL  string
	ClientName string
	ClientKey  string // path to a PEM file or the PEM itself
	SkipSSL    bool
	Timeout    int // seconds
}

// Searcher implements discovery.NodeSearcher against a Chef server
type Searcher struct {
	client *chef.Client
}

// NewSearcher creates an authenticated Chef API client
func NewSearcher(opts Options) (*Searcher, error) {
	key, err := loadKey(opts.ClientKey)
	if err != nil {
		return nil, err
	}

	baseURL := opts.ServerURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	client, err := chef.NewClient(&chef.Config{
		Name:    opts.ClientName,
		Key:     key,
		BaseURL: baseURL,
		SkipSSL: opts.SkipSSL,
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create chef client: %w", err)
	}

	return &Searcher{client: client}, nil
}

// SearchNodes runs a partial node search and returns the typed rows.
// The Chef client has no context support; its own timeout bounds the call.
func (s *Searcher) SearchNodes(ctx context.Context, query string) ([]discovery.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := s.client.Search.PartialExec("node", query, partialKeys)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	return decodeRows(res.Rows)
}

type partialRow struct {
	URL  string `mapstructure:"url"`
	Data struct {
		FQDN        *string `mapstructure:"fqdn"`
		RedisMaster *bool   `mapstructure:"redis_master"`
		Instances   *int    `mapstructure:"instances"`
	} `mapstructure:"data"`
}

func decodeRows(rows []interface{}) ([]discovery.Node, error) {
	nodes := make([]discovery.Node, 0, len(rows))
	for i, row := range rows {
		var pr partialRow
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &pr,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(row); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", i, err)
		}

		n := discovery.Node{
			RedisMaster: pr.Data.RedisMaster,
			Instances:   pr.Data.Instances,
		}
		if pr.Data.FQDN != nil {
			n.FQDN = *pr.Data.FQDN
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func loadKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("chef client key is empty")
	}
	if strings.HasPrefix(key, "-----BEGIN") {
		return key, nil
	}

	data, err := os.ReadFile(key)
	if err != nil {
		return "", fmt.Errorf("read chef client key: %w", err)
	}
	return string(data), nil
}

var _ discovery.NodeSearcher = (*Searcher)(nil)
