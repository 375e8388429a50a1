package customization

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const exportVersion = 1

type exportDocument struct {
	Version  int            `yaml:"version"`
	Exported time.Time      `yaml:"exported"`
	Monitors []exportRecord `yaml:"monitors"`
}

type exportRecord struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name,omitempty"`
	Unison  bool   `yaml:"unison,omitempty"`
	Lowest  uint8  `yaml:"lowest"`
	Highest uint8  `yaml:"highest"`
}

// ImportResult summarizes an Import call.
type ImportResult struct {
	Stored  int
	Cleared int
}

// Export writes every stored customization as YAML, least recently used first,
// so that importing the document reproduces the same recency order.
func (s *Store) Export(w io.Writer) error {
	records := s.Records()
	slices.Reverse(records)

	doc := exportDocument{
		Version:  exportVersion,
		Exported: s.now().UTC().Truncate(time.Second),
		Monitors: make([]exportRecord, 0, len(records)),
	}
	for _, rec := range records {
		doc.Monitors = append(doc.Monitors, exportRecord{
			ID:      rec.ID,
			Name:    rec.Customization.Name,
			Unison:  rec.Customization.IsUnison,
			Lowest:  rec.Customization.Lowest,
			Highest: rec.Customization.Highest,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode customizations: %w", err)
	}
	return enc.Close()
}

// Import applies a document produced by Export. Entries that fail validation
// clear the matching customization, the same as Save.
func (s *Store) Import(r io.Reader) (ImportResult, error) {
	var doc exportDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, nil
		}
		return ImportResult{}, fmt.Errorf("decode customizations: %w", err)
	}
	if doc.Version != 0 && doc.Version != exportVersion {
		return ImportResult{}, fmt.Errorf("decode customizations: unsupported version %d", doc.Version)
	}

	var result ImportResult
	for _, m := range doc.Monitors {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		stored := s.Save(m.ID, Customization{
			Name:     m.Name,
			IsUnison: m.Unison,
			Lowest:   m.Lowest,
			Highest:  m.Highest,
		})
		if stored {
			result.Stored++
		} else {
			result.Cleared++
		}
	}
	return result, nil
}
