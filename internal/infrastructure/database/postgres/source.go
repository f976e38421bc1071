package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// SourceConfig names the table and columns molecules are read from. The
// defaults match the embedded migrations.
type SourceConfig struct {
	Table           string   `mapstructure:"table"`
	IDColumn        string   `mapstructure:"id_column"`
	StructureColumn string   `mapstructure:"structure_column"`
	StoredColumns   []string `mapstructure:"stored_columns"`
}

func (c *SourceConfig) applyDefaults() {
	if c.Table == "" {
		c.Table = "molecules"
	}
	if c.IDColumn == "" {
		c.IDColumn = "id"
	}
	if c.StructureColumn == "" {
		c.StructureColumn = "smiles"
	}
}

func (c SourceConfig) validate() error {
	names := append([]string{c.IDColumn, c.StructureColumn}, c.StoredColumns...)
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return errors.InvalidParam("empty postgres column name")
		}
	}
	return nil
}

// quoteTable quotes a table name, keeping an optional schema qualifier.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// MoleculeSource pages through a molecule table by keyset on the ID column.
type MoleculeSource struct {
	db     *sql.DB
	cfg    SourceConfig
	logger logging.Logger

	pageQuery  string
	getQuery   string
	countQuery string
}

var _ molecule.Source = (*MoleculeSource)(nil)

func NewMoleculeSource(conn *Connection, cfg SourceConfig, log logging.Logger) (*MoleculeSource, error) {
	if conn == nil || conn.DB() == nil {
		return nil, errors.InvalidParam("postgres connection is required")
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	id := pq.QuoteIdentifier(cfg.IDColumn)
	structure := pq.QuoteIdentifier(cfg.StructureColumn)
	cols := []string{id + "::text", structure}
	for _, c := range cfg.StoredColumns {
		cols = append(cols, pq.QuoteIdentifier(c)+"::text")
	}
	sel := "SELECT " + strings.Join(cols, ", ") + " FROM " + quoteTable(cfg.Table)

	return &MoleculeSource{
		db:     conn.DB(),
		cfg:    cfg,
		logger: log.Named("molecule_source"),
		pageQuery: fmt.Sprintf("%s WHERE %s > $1 AND %s IS NOT NULL ORDER BY %s LIMIT $2",
			sel, id, structure, id),
		getQuery: fmt.Sprintf("%s WHERE %s = $1", sel, id),
		countQuery: fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NOT NULL",
			quoteTable(cfg.Table), structure),
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
	rows, err := s.db.QueryContext(ctx, s.pageQuery, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query molecules")
	}
	defer rows.Close()

	page := make([]molecule.Record, 0, limit)
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate molecules")
	}
	return page, nil
}

func (s *MoleculeSource) Get(ctx context.Context, id string) (molecule.Record, error) {
	rec, err := s.scanRecord(s.db.QueryRowContext(ctx, s.getQuery, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return molecule.Record{}, errors.NotFound("molecule not found").WithDetailf("id=%s", id)
		}
		return molecule.Record{}, err
	}
	return rec, nil
}

func (s *MoleculeSource) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.countQuery).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count molecules")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *MoleculeSource) scanRecord(row rowScanner) (molecule.Record, error) {
	var (
		id        string
		structure sql.NullString
		stored    = make([]sql.NullString, len(s.cfg.StoredColumns))
	)
	dest := []any{&id, &structure}
	for i := range stored {
		dest = append(dest, &stored[i])
	}
	if err := row.Scan(dest...); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return molecule.Record{}, err
		}
		return molecule.Record{}, errors.Wrap(err, errors.ErrCodeSerialization, "failed to scan molecule row")
	}
	if !structure.Valid {
		return molecule.Record{}, errors.New(errors.ErrCodeSerialization, "molecule row without structure").
			WithDetailf("id=%s", id)
	}

	rec := molecule.Record{ID: id, Structure: structure.String}
	for i, col := range s.cfg.StoredColumns {
		if !stored[i].Valid {
			continue
		}
		if rec.Properties == nil {
			rec.Properties = make(map[string]string, len(s.cfg.StoredColumns))
		}
		rec.Properties[col] = stored[i].String
	}
	return rec, nil
}

//Personal.AI order the ending
