package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// ElasticSearch holds the connection settings for the flight document store.
// Credentials left empty in the file fall back to the environment so they can
// stay out of version control.
type ElasticSearch struct {
	Endpoint  string            `yaml:"endpoint"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	APIKey    string            `yaml:"api_key"`
	Headers   map[string]string `yaml:"headers"`
	SSLVerify *bool             `yaml:"ssl_verify"`
}

const (
	envEndpoint = "ELASTICSEARCH_ENDPOINT"
	envPassword = "ELASTICSEARCH_PASSWORD"
	envAPIKey   = "ELASTICSEARCH_API_KEY"
)

// Load reads the YAML connection config at path. A missing endpoint is an
// error since nothing can run without one.
func Load(path string) (ElasticSearch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ElasticSearch{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var conf ElasticSearch
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return ElasticSearch{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if conf.Endpoint == "" {
		conf.Endpoint = os.Getenv(envEndpoint)
	}
	if conf.Password == "" {
		conf.Password = os.Getenv(envPassword)
	}
	if conf.APIKey == "" {
		conf.APIKey = os.Getenv(envAPIKey)
	}

	if conf.Endpoint == "" {
		return ElasticSearch{}, fmt.Errorf("config %s has no elasticsearch endpoint", path)
	}

	return conf, nil
}

// VerifySSL reports whether server certificates should be verified. Unset
// means verify.
func (c ElasticSearch) VerifySSL() bool {
	return c.SSLVerify == nil || *c.SSLVerify
}

// LoadMapping reads an index mapping file. The payload stays opaque; it only
// has to be a JSON object.
func LoadMapping(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping %s: %w", path, err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing mapping %s: %w", path, err)
	}

	return data, nil
}
