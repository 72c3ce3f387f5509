package sqlload

import (
	"io"
	"io/ioutil"

	"github.com/jjeffery/errors"
	yaml "gopkg.in/yaml.v2"
)

// registryConfig is the YAML representation of a registry.
//
//  kinds:
//    - name: User
//      table: users
//      primary_key: [id]
//    - name: Post
//      primary_key: [id]
//  relations:
//    - name: posts
//      owner: User
//      target: Post
//      foreign_key:
//        side: target
//        columns: [owner_id]
type registryConfig struct {
	Kinds     []*Kind     `yaml:"kinds"`
	Relations []*Relation `yaml:"relations"`
}

// ParseRegistry parses a registry from its YAML representation.
// Unknown fields are an error.
func ParseRegistry(data []byte) (*Registry, error) {
	var cfg registryConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse registry")
	}
	return NewRegistry(cfg.Kinds, cfg.Relations)
}

// ReadRegistry reads a registry in YAML format from r.
func ReadRegistry(r io.Reader) (*Registry, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read registry")
	}
	return ParseRegistry(data)
}

// MarshalYAML returns the YAML representation of the registry.
func (reg *Registry) MarshalYAML() (interface{}, error) {
	cfg := registryConfig{Kinds: reg.kinds}
	for _, k := range reg.kinds {
		cfg.Relations = append(cfg.Relations, k.relations...)
	}
	return cfg, nil
}
