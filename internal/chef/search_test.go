package chef

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}))
}

func TestDecodeRows(t *testing.T) {
	rows := []interface{}{
		map[string]interface{}{
			"url": "https://chef/nodes/redis1",
			"data": map[string]interface{}{
				"fqdn":         "redis1.example.com",
				"redis_master": true,
				"instances":    float64(2),
			},
		},
		map[string]interface{}{
			"url": "https://chef/nodes/redis2",
			"data": map[string]interface{}{
				"fqdn":         "redis2.example.com",
				"redis_master": "false",
				"instances":    "3",
			},
		},
		map[string]interface{}{
			"url": "https://chef/nodes/bare",
			"data": map[string]interface{}{
				"fqdn":         "bare.example.com",
				"redis_master": nil,
			},
		},
	}

	nodes, err := decodeRows(rows)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.Equal(t, "redis1.example.com", nodes[0].FQDN)
	require.NotNil(t, nodes[0].RedisMaster)
	assert.True(t, *nodes[0].RedisMaster)
	require.NotNil(t, nodes[0].Instances)
	assert.Equal(t, 2, *nodes[0].Instances)

	require.NotNil(t, nodes[1].RedisMaster)
	assert.False(t, *nodes[1].RedisMaster)
	assert.Equal(t, 3, *nodes[1].Instances)

	assert.Equal(t, "bare.example.com", nodes[2].FQDN)
	assert.Nil(t, nodes[2].RedisMaster)
	assert.Nil(t, nodes[2].Instances)
}

func TestDecodeRowsMalformed(t *testing.T) {
	_, err := decodeRows([]interface{}{
		map[string]interface{}{"data": map[string]interface{}{"instances": map[string]interface{}{"count": 2}}},
	})
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	pemKey := testKey(t)

	t.Run("inline", func(t *testing.T) {
		got, err := loadKey(pemKey)
		require.NoError(t, err)
		assert.Equal(t, pemKey[:len(pemKey)-1], got)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "client.pem")
		require.NoError(t, os.WriteFile(path, []byte(pemKey), 0o600))

		got, err := loadKey(path)
		require.NoError(t, err)
		assert.Equal(t, pemKey, got)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := loadKey("  ")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadKey(filepath.Join(t.TempDir(), "absent.pem"))
		assert.Error(t, err)
	})
}

func TestSearchUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	s, err := NewSearcher(Options{
		ServerURL:  "http://" + addr + "/organizations/ops",
		ClientName: "quasar",
		ClientKey:  testKey(t),
		Timeout:    2,
	})
	require.NoError(t, err)

	_, err = s.SearchNodes(context.Background(), "environment:production AND role:yotpo_redis")
	assert.Error(t, err)
}

func TestSearchCancelled(t *testing.T) {
	s, err := NewSearcher(Options{
		ServerURL:  "http://127.0.0.1:1",
		ClientName: "quasar",
		ClientKey:  testKey(t),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SearchNodes(ctx, "role:x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchNodesRoundTrip(t *testing.T) {
	var gotQuery, gotPath string
	var gotKeys map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		if err := json.NewDecoder(r.Body).Decode(&gotKeys); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"total": 1,
			"start": 0,
			"rows": [{
				"url": "https://chef/organizations/ops/nodes/redis1",
				"data": {"fqdn": "redis1.example.com", "redis_master": false, "instances": 2}
			}]
		}`))
	}))
	defer srv.Close()

	s, err := NewSearcher(Options{
		ServerURL:  srv.URL + "/organizations/ops",
		ClientName: "quasar",
		ClientKey:  testKey(t),
		Timeout:    2,
	})
	require.NoError(t, err)

	nodes, err := s.SearchNodes(context.Background(), "environment:production AND role:yotpo_redis")
	require.NoError(t, err)

	assert.Equal(t, "/organizations/ops/search/node", gotPath)
	assert.Equal(t, "environment:production AND role:yotpo_redis", gotQuery)
	assert.Equal(t, map[string][]string{
		"fqdn":         {"fqdn"},
		"redis_master": {"yotpo_server", "redis_master"},
		"instances":    {"yotpo_server", "yotpo-redis", "instances"},
	}, gotKeys)

	require.Len(t, nodes, 1)
	assert.Equal(t, "redis1.example.com", nodes[0].FQDN)
	require.NotNil(t, nodes[0].RedisMaster)
	assert.False(t, *nodes[0].RedisMaster)
	require.NotNil(t, nodes[0].Instances)
	assert.Equal(t, 2, *nodes[0].Instances)
}
