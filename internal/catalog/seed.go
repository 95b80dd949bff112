package catalog

import (
	"fmt"
	"io"

	"github.com/gofrs/uuid"
	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk layout of a catalog seed:
//
//	products:
//	  - id: 6f1c...
//	    name: Mug
//	    price: 50000
type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Price int64  `yaml:"price"`
}

// Validate reports whether p can be stored.
func (p Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	return nil
}

// LoadSeed parses a YAML catalog seed. Products without an id get a fresh
// one.
func LoadSeed(r io.Reader) ([]Product, error) {
	var file seedFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog seed: %w", err)
	}

	products := make([]Product, 0, len(file.Products))
	seen := make(map[uuid.UUID]struct{}, len(file.Products))
	for i, sp := range file.Products {
		p := Product{Name: sp.Name, Price: sp.Price}
		if sp.ID != "" {
			id, err := uuid.FromString(sp.ID)
			if err != nil {
				return nil, fmt.Errorf("product %d: invalid id %q: %w", i, sp.ID, err)
			}
			p.ID = id
		} else {
			p.ID = uuid.Must(uuid.NewV4())
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("product %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = struct{}{}

		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		products = append(products, p)
	}
	return products, nil
}
