package es

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flightwatch-io/flightloader/pkg/config"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respond(status int, body string) *http.Response {
	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func testClient(t *testing.T, handler roundTripperFunc) *Client {
	t.Helper()
	client, err := newClient(elasticsearch.Config{
		Addresses: []string{"http://elasticsearch.test:9200"},
		Transport: handler,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(config.ElasticSearch{}, zap.NewNop())
	assert.Error(t, err)
}

func TestIndexExists(t *testing.T) {
	var method, path string
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		method, path = r.Method, r.URL.Path
		return respond(http.StatusOK, ""), nil
	})

	exists, err := client.IndexExists(context.Background(), "flights-2024-01")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, http.MethodHead, method)
	assert.Equal(t, "/flights-2024-01", path)
}

func TestIndexExistsMissing(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, ""), nil
	})

	exists, err := client.IndexExists(context.Background(), "flights-2024-01")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIndexExistsServerError(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusInternalServerError, `{"error":"boom"}`), nil
	})

	_, err := client.IndexExists(context.Background(), "flights-2024-01")
	assert.Error(t, err)
}

func TestCreateIndex(t *testing.T) {
	var method, path, body string
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		method, path = r.Method, r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		return respond(http.StatusOK, `{"acknowledged":true}`), nil
	})

	mapping := []byte(`{"mappings":{"properties":{"@timestamp":{"type":"date"}}}}`)
	err := client.CreateIndex(context.Background(), "flights-2024-01", mapping)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/flights-2024-01", path)
	assert.JSONEq(t, string(mapping), body)
}

func TestCreateIndexAlreadyExists(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusBadRequest,
			`{"error":{"type":"resource_already_exists_exception","reason":"index [flights-2024-01] already exists"}}`), nil
	})

	err := client.CreateIndex(context.Background(), "flights-2024-01", []byte(`{}`))
	assert.NoError(t, err)
}

func TestCreateIndexConflict(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusConflict, `{"error":"exists"}`), nil
	})

	err := client.CreateIndex(context.Background(), "flights-2024-01", []byte(`{}`))
	assert.NoError(t, err)
}

func TestCreateIndexBadRequest(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusBadRequest,
			`{"error":{"type":"mapper_parsing_exception","reason":"bad mapping"}}`), nil
	})

	err := client.CreateIndex(context.Background(), "flights-2024-01", []byte(`{"mappings":{}}`))
	assert.Error(t, err)
}

func TestBulk(t *testing.T) {
	var path, body, refresh string
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		path = r.URL.Path
		refresh = r.URL.Query().Get("refresh")
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		return respond(http.StatusOK,
			`{"took":12,"errors":false,"items":[{"index":{"_index":"flights-2024-01","status":201}}]}`), nil
	})

	payload := "{\"index\":{\"_index\":\"flights-2024-01\"}}\n{\"Origin\":\"BOS\"}\n"
	resp, err := client.Bulk(context.Background(), strings.NewReader(payload), true)
	require.NoError(t, err)
	assert.Equal(t, "/_bulk", path)
	assert.Equal(t, "true", refresh)
	assert.Equal(t, payload, body)
	assert.Equal(t, 12, resp.Took)
	assert.False(t, resp.Errors)
	require.Len(t, resp.Items, 1)
}

func TestBulkFailedItems(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, `{
			"took": 3,
			"errors": true,
			"items": [
				{"index":{"_index":"flights-2024-01","status":201}},
				{"index":{"_index":"flights-2024-01","status":400,"error":{"type":"mapper_parsing_exception","reason":"field mismatch"}}},
				{"index":{"_index":"flights-2024-01","status":429}}
			]
		}`), nil
	})

	resp, err := client.Bulk(context.Background(), strings.NewReader("x\n"), false)
	require.NoError(t, err)
	assert.True(t, resp.Errors)

	failed := resp.FailedItems(5)
	require.Len(t, failed, 2)
	assert.Equal(t, "mapper_parsing_exception", failed[0].Error.Type)
	assert.Equal(t, http.StatusTooManyRequests, failed[1].Status)

	assert.Len(t, resp.FailedItems(1), 1)
}

func TestBulkTransportError(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusServiceUnavailable, `{"error":"unavailable"}`), nil
	})

	_, err := client.Bulk(context.Background(), strings.NewReader("x\n"), false)
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	var path string
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		path = r.URL.Path
		return respond(http.StatusOK, `{"count":48211}`), nil
	})

	count, err := client.Count(context.Background(), "flights-*")
	require.NoError(t, err)
	assert.Equal(t, int64(48211), count)
	assert.Equal(t, "/flights-*/_count", path)
}

func TestCountMissingIndex(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, `{"error":"no such index"}`), nil
	})

	count, err := client.Count(context.Background(), "flights")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteIndex(t *testing.T) {
	var method, path string
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		method, path = r.Method, r.URL.Path
		return respond(http.StatusOK, `{"acknowledged":true}`), nil
	})

	deleted, err := client.DeleteIndex(context.Background(), "flights-2024-01")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/flights-2024-01", path)
}

func TestDeleteIndexMissing(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, `{"error":"no such index"}`), nil
	})

	deleted, err := client.DeleteIndex(context.Background(), "flights-2024-01")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestClusterHealth(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/_cluster/health", r.URL.Path)
		return respond(http.StatusOK,
			`{"cluster_name":"flights-dev","status":"yellow","number_of_nodes":1,"active_shards":12,"active_primary_shards":12}`), nil
	})

	health, err := client.ClusterHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "flights-dev", health.ClusterName)
	assert.Equal(t, "yellow", health.Status)
	assert.Equal(t, 1, health.NumberOfNodes)
	assert.Equal(t, 12, health.ActiveShards)
}

func TestListIndices(t *testing.T) {
	var path, format string
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		path = r.URL.Path
		format = r.URL.Query().Get("format")
		return respond(http.StatusOK, `[{"index":"flights-2023"},{"index":"flights-2024-01"}]`), nil
	})

	names, err := client.ListIndices(context.Background(), "flights-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"flights-2023", "flights-2024-01"}, names)
	assert.Equal(t, "/_cat/indices/flights-*", path)
	assert.Equal(t, "json", format)
}

func TestListIndicesNoMatch(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, `{"error":"no such index"}`), nil
	})

	names, err := client.ListIndices(context.Background(), "flights-*")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDeleteIndicesByPattern(t *testing.T) {
	var deletes []string
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/_cat/indices"):
			return respond(http.StatusOK, `[{"index":"flights-2023"},{"index":"flights-2024-01"}]`), nil
		case r.Method == http.MethodDelete:
			deletes = append(deletes, strings.TrimPrefix(r.URL.Path, "/"))
			return respond(http.StatusOK, `{"acknowledged":true}`), nil
		default:
			return respond(http.StatusInternalServerError, `{}`), nil
		}
	})

	deleted, err := client.DeleteIndicesByPattern(context.Background(), "flights-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"flights-2023", "flights-2024-01"}, deleted)
	assert.Equal(t, deleted, deletes)
}
