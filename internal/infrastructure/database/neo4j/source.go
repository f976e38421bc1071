package neo4j

import (
	"context"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// SourceConfig names the node label and properties molecules are read from.
type SourceConfig struct {
	Label             string   `mapstructure:"label"`
	IDProperty        string   `mapstructure:"id_property"`
	StructureProperty string   `mapstructure:"structure_property"`
	StoredProperties  []string `mapstructure:"stored_properties"`
}

func (c *SourceConfig) applyDefaults() {
	if c.Label == "" {
		c.Label = "Chemical"
	}
	if c.IDProperty == "" {
		c.IDProperty = "id"
	}
	if c.StructureProperty == "" {
		c.StructureProperty = "smiles"
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (c SourceConfig) validate() error {
	names := append([]string{c.Label, c.IDProperty, c.StructureProperty}, c.StoredProperties...)
	for _, n := range names {
		if !identifierPattern.MatchString(n) {
			return errors.InvalidParam("invalid neo4j identifier").WithDetailf("name=%q", n)
		}
	}
	return nil
}

// MoleculeSource pages through molecule nodes in ID order.
type MoleculeSource struct {
	driver *Driver
	cfg    SourceConfig
	logger logging.Logger

	pageQuery  string
	getQuery   string
	countQuery string
}

var _ molecule.Source = (*MoleculeSource)(nil)

func NewMoleculeSource(d *Driver, cfg SourceConfig, log logging.Logger) (*MoleculeSource, error) {
	if d == nil {
		return nil, errors.InvalidParam("neo4j driver is required")
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	ret := fmt.Sprintf("RETURN c.%s AS id, c.%s AS structure, properties(c) AS props", cfg.IDProperty, cfg.StructureProperty)
	return &MoleculeSource{
		driver: d,
		cfg:    cfg,
		logger: log.Named("molecule_source"),
		pageQuery: fmt.Sprintf("MATCH (c:%s) WHERE c.%s > $after AND c.%s IS NOT NULL %s ORDER BY c.%s LIMIT $limit",
			cfg.Label, cfg.IDProperty, cfg.StructureProperty, ret, cfg.IDProperty),
		getQuery: fmt.Sprintf("MATCH (c:%s) WHERE c.%s = $id %s LIMIT 1",
			cfg.Label, cfg.IDProperty, ret),
		countQuery: fmt.Sprintf("MATCH (c:%s) WHERE c.%s IS NOT NULL RETURN count(c) AS n",
			cfg.Label, cfg.StructureProperty),
	}, nil
}

func (s *MoleculeSource) Scan(ctx context.Context, pageSize int, fn func(page []molecule.Record) error) error {
	if pageSize <= 0 {
		return errors.InvalidParam("page size must be positive")
	}
	after := ""
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.page(ctx, after, pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		pages++
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < pageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	s.logger.Debug("molecule scan finished", logging.Int("pages", pages))
	return nil
}

func (s *MoleculeSource) page(ctx context.Context, after string, limit int) ([]molecule.Record, error) {
	out, err := s.driver.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		result, err := tx.Run(ctx, s.pageQuery, map[string]any{"after": after, "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		return CollectRecords(ctx, result, s.toRecord)
	})
	if err != nil {
		return nil, err
	}
	records, _ := out.([]molecule.Record)
	return records, nil
}

func (s *MoleculeSource) Get(ctx context.Context, id string) (molecule.Record, error) {
	out, err := s.driver.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		result, err := tx.Run(ctx, s.getQuery, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return ExtractSingleRecord(ctx, result, s.toRecord)
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return molecule.Record{}, errors.NotFound("molecule not found").WithDetailf("id=%s", id)
		}
		return molecule.Record{}, err
	}
	return out.(molecule.Record), nil
}

func (s *MoleculeSource) Count(ctx context.Context) (int64, error) {
	out, err := s.driver.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		result, err := tx.Run(ctx, s.countQuery, nil)
		if err != nil {
			return nil, err
		}
		return ExtractSingleRecord(ctx, result, func(r *neo4j.Record) (int64, error) {
			n, _, err := neo4j.GetRecordValue[int64](r, "n")
			return n, err
		})
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

func (s *MoleculeSource) toRecord(r *neo4j.Record) (molecule.Record, error) {
	id, _, err := neo4j.GetRecordValue[string](r, "id")
	if err != nil {
		return molecule.Record{}, errors.Wrap(err, errors.ErrCodeSerialization, "molecule node without string id")
	}
	structure, _, err := neo4j.GetRecordValue[string](r, "structure")
	if err != nil {
		return molecule.Record{}, errors.Wrap(err, errors.ErrCodeSerialization, "molecule node without structure").WithDetailf("id=%s", id)
	}
	rec := molecule.Record{ID: id, Structure: structure}

	if len(s.cfg.StoredProperties) == 0 {
		return rec, nil
	}
	props, _ := r.Get("props")
	m, _ := props.(map[string]any)
	for _, key := range s.cfg.StoredProperties {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if rec.Properties == nil {
			rec.Properties = make(map[string]string, len(s.cfg.StoredProperties))
		}
		rec.Properties[key] = fmt.Sprint(v)
	}
	return rec, nil
}

//Personal.AI order the ending
