package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/flightwatch-io/flightloader/pkg/config"
)

// Client wraps the official Elasticsearch client with the handful of
// operations the importer needs.
type Client struct {
	es     *elasticsearch.Client
	logger *zap.Logger
}

// NewClient builds a Client from connection settings. An API key wins over
// basic auth when both are configured.
func NewClient(conf config.ElasticSearch, logger *zap.Logger) (*Client, error) {
	if conf.Endpoint == "" {
		return nil, fmt.Errorf("elasticsearch endpoint is required")
	}

	esConf := elasticsearch.Config{
		Addresses: []string{conf.Endpoint},
	}

	if conf.APIKey != "" {
		esConf.APIKey = conf.APIKey
	} else if conf.User != "" && conf.Password != "" {
		esConf.Username = conf.User
		esConf.Password = conf.Password
	}

	if len(conf.Headers) > 0 {
		esConf.Header = http.Header{}
		for k, v := range conf.Headers {
			esConf.Header.Set(k, v)
		}
	}

	if !conf.VerifySSL() {
		esConf.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return newClient(esConf, logger)
}

func newClient(esConf elasticsearch.Config, logger *zap.Logger) (*Client, error) {
	client, err := elasticsearch.NewClient(esConf)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	return &Client{es: client, logger: logger}, nil
}

// IndexExists reports whether the named index is present.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("checking index %s: %s", name, res.String())
	}

	return true, nil
}

// CreateIndex creates the named index with the given mapping payload. A
// creation conflict means somebody else got there first and is treated as
// success.
func (c *Client) CreateIndex(ctx context.Context, name string, mapping json.RawMessage) error {
	opts := []func(*esapi.IndicesCreateRequest){
		c.es.Indices.Create.WithContext(ctx),
	}
	if len(mapping) > 0 {
		opts = append(opts, c.es.Indices.Create.WithBody(bytes.NewReader(mapping)))
	}

	res, err := c.es.Indices.Create(name, opts...)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if res.StatusCode == http.StatusConflict ||
			(res.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "resource_already_exists_exception")) {
			c.logger.Info("index already exists", zap.String("index", name))
			return nil
		}
		return fmt.Errorf("creating index %s: status %d: %s", name, res.StatusCode, string(body))
	}

	c.logger.Info("created index", zap.String("index", name))
	return nil
}

// BulkResponse is the item-level result of one bulk request.
type BulkResponse struct {
	Took   int                   `json:"took"`
	Errors bool                  `json:"errors"`
	Items  []map[string]BulkItem `json:"items"`
}

// BulkItem is the outcome for a single action within a bulk request, keyed in
// the response by the action name.
type BulkItem struct {
	Index  string     `json:"_index"`
	Status int        `json:"status"`
	Error  *BulkError `json:"error,omitempty"`
}

type BulkError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// FailedItems returns the items that were rejected, at most limit of them.
func (r *BulkResponse) FailedItems(limit int) []BulkItem {
	var failed []BulkItem
	for _, item := range r.Items {
		for _, result := range item {
			if result.Error != nil || result.Status >= http.StatusMultipleChoices {
				failed = append(failed, result)
				if len(failed) >= limit {
					return failed
				}
			}
		}
	}
	return failed
}

// Bulk submits one newline-delimited bulk payload and parses the item-level
// response. Transport failures and non-2xx responses are errors; item-level
// failures are reported through the returned BulkResponse.
func (c *Client) Bulk(ctx context.Context, payload io.Reader, refresh bool) (*BulkResponse, error) {
	res, err := c.es.Bulk(payload,
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh(strconv.FormatBool(refresh)),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bulk request: status %d: %s", res.StatusCode, string(body))
	}

	var parsed BulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding bulk response: %w", err)
	}

	return &parsed, nil
}

// Count returns the number of documents matching the index name or pattern.
// A pattern that matches nothing counts as zero.
func (c *Client) Count(ctx context.Context, index string) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
	)
	if err != nil {
		return 0, fmt.Errorf("counting documents in %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("counting documents in %s: %s", index, res.String())
	}

	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}

	return parsed.Count, nil
}

// DeleteIndex removes the named index. It returns false without error when
// the index does not exist.
func (c *Client) DeleteIndex(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("deleting index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return false, nil
		}
		body, _ := io.ReadAll(res.Body)
		return false, fmt.Errorf("deleting index %s: status %d: %s", name, res.StatusCode, string(body))
	}

	return true, nil
}

// Health is the subset of the cluster health response the status report uses.
type Health struct {
	ClusterName         string `json:"cluster_name"`
	Status              string `json:"status"`
	NumberOfNodes       int    `json:"number_of_nodes"`
	ActiveShards        int    `json:"active_shards"`
	ActivePrimaryShards int    `json:"active_primary_shards"`
}

// ClusterHealth probes the cluster.
func (c *Client) ClusterHealth(ctx context.Context) (*Health, error) {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("cluster health request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("cluster health request: %s", res.String())
	}

	var health Health
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decoding cluster health response: %w", err)
	}

	return &health, nil
}

// ListIndices returns the names of indices matching the pattern.
func (c *Client) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := c.es.Cat.Indices(
		c.es.Cat.Indices.WithContext(ctx),
		c.es.Cat.Indices.WithIndex(pattern),
		c.es.Cat.Indices.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("listing indices %s: %w", pattern, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("listing indices %s: %s", pattern, res.String())
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding indices listing: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Index != "" {
			names = append(names, row.Index)
		}
	}

	return names, nil
}

// DeleteIndicesByPattern deletes every index matching the pattern and returns
// the names that were removed.
func (c *Client) DeleteIndicesByPattern(ctx context.Context, pattern string) ([]string, error) {
	names, err := c.ListIndices(ctx, pattern)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, name := range names {
		ok, err := c.DeleteIndex(ctx, name)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted = append(deleted, name)
		}
	}

	return deleted, nil
}
