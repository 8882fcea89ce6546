package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// manifest describes one composite product. A manifest with an id re-edits that product; otherwise a new
// one is created. A file may hold several manifests as separate YAML documents.
type manifest struct {
	ID             string   `yaml:"id"`
	IdempotencyKey string   `yaml:"idempotencyKey"`
	ProductA       string   `yaml:"productA"`
	ProductB       string   `yaml:"productB"`
	VariantsA      []string `yaml:"variantsA"`
	VariantsB      []string `yaml:"variantsB"`
	// CarryOver keeps images and prices of combinations that survive a change of variants.
	CarryOver bool `yaml:"carryOver"`

	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	FinalPrice  *float64 `yaml:"finalPrice"`
	Status      string   `yaml:"status"`

	Combinations []manifestCombination `yaml:"combinations"`

	dir string
}

// manifestCombination targets one combination by key, or by the variant values of both sides. An empty
// value selects the whole product of a side without variants.
type manifestCombination struct {
	Key             string   `yaml:"key"`
	A               string   `yaml:"a"`
	B               string   `yaml:"b"`
	Image           string   `yaml:"image"`
	ImagePath       string   `yaml:"imagePath"`
	AdditionalPrice *float64 `yaml:"additionalPrice"`
}

func loadManifests(path string) ([]manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	manifests, err := decodeManifests(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range manifests {
		manifests[i].dir = dir
	}
	return manifests, nil
}

func decodeManifests(r io.Reader) ([]manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var out []manifest
	for doc := 1; ; doc++ {
		var m manifest
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, errors.New("manifest is empty")
	}
	return out, nil
}

func (m *manifest) validate() error {
	m.ID = strings.TrimSpace(m.ID)
	m.ProductA = strings.TrimSpace(m.ProductA)
	m.ProductB = strings.TrimSpace(m.ProductB)
	if m.ID == "" {
		if m.ProductA == "" || m.ProductB == "" {
			return errors.New("productA and productB are required for a new product")
		}
		if strings.TrimSpace(m.Name) == "" {
			return errors.New("name is required for a new product")
		}
		if m.FinalPrice == nil {
			return errors.New("finalPrice is required for a new product")
		}
	}
	if (m.ProductA == "") != (m.ProductB == "") {
		return errors.New("productA and productB must be given together")
	}
	for i, c := range m.Combinations {
		if c.Image != "" && c.ImagePath != "" {
			return fmt.Errorf("combinations[%d]: image and imagePath are mutually exclusive", i)
		}
		if c.Image == "" && c.ImagePath == "" && c.AdditionalPrice == nil {
			return fmt.Errorf("combinations[%d]: nothing to apply", i)
		}
	}
	return nil
}

// imageFile resolves an image path relative to the manifest file.
func (m manifest) imageFile(name string) string {
	if filepath.IsAbs(name) || m.dir == "" {
		return name
	}
	return filepath.Join(m.dir, name)
}
