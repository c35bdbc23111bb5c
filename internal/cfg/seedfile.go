package cfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the shape of the optional --seed-file YAML document: a
// flat list of feed URLs submitted as a single batch at startup.
//
//	urls:
//	  - https://example.com/feed.xml
//	  - https://example.org/podcast.rss
type SeedFile struct {
	URLs []string `yaml:"urls"`
}

// LoadSeedFile reads and parses a seed file. An empty path is not an
// error; it simply yields no seed URLs.
func LoadSeedFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var doc SeedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	return doc.URLs, nil
}
