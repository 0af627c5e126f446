package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/localdata/types"
)

//go:embed sql/list-lsoas.sql
var listLSOAsSQL string

//go:embed sql/upsert-lsoa.sql
var upsertLSOASQL string

//go:embed sql/list-homelessness.sql
var listHomelessnessSQL string

//go:embed sql/upsert-homelessness.sql
var upsertHomelessnessSQL string

//go:embed sql/list-crime.sql
var listCrimeSQL string

//go:embed sql/list-crime-boroughs.sql
var listCrimeBoroughsSQL string

//go:embed sql/upsert-crime.sql
var upsertCrimeSQL string

//go:embed sql/list-population.sql
var listPopulationSQL string

//go:embed sql/list-population-all-ages.sql
var listPopulationAllAgesSQL string

//go:embed sql/upsert-population.sql
var upsertPopulationSQL string

type LocalDataRepository interface {
	ListLSOAs(ctx context.Context) ([]types.LSOA, error)
	ListHomelessness(ctx context.Context) ([]types.HomelessnessPoint, error)
	ListCrime(ctx context.Context, borough string) ([]types.CrimeRecord, error)
	ListCrimeBoroughs(ctx context.Context) ([]string, error)
	ListPopulation(ctx context.Context, area string) ([]types.PopulationRow, error)
	ListPopulationAllAges(ctx context.Context) ([]types.PopulationRow, error)

	UpsertLSOAs(ctx context.Context, lsoas []types.LSOA) error
	UpsertHomelessness(ctx context.Context, points []types.HomelessnessPoint) error
	UpsertCrime(ctx context.Context, records []types.CrimeRecord) error
	UpsertPopulation(ctx context.Context, rows []types.PopulationRow) error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) LocalDataRepository {
	return &repositoryImpl{db: db}
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Error("close "+what+" rows", "error", err)
	}
}

func (r *repositoryImpl) ListLSOAs(ctx context.Context) ([]types.LSOA, error) {
	rows, err := r.db.QueryContext(ctx, listLSOAsSQL)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "lsoa")
	var out []types.LSOA
	for rows.Next() {
		var l types.LSOA
		if err := rows.Scan(&l.Code, &l.Name, &l.Ward, &l.Borough, &l.IMDRank, &l.IMDDecile,
			&l.IncomeDecile, &l.EmploymentDecile, &l.EducationDecile, &l.HealthDecile,
			&l.CrimeDecile, &l.BarriersDecile, &l.EnvironmentDecile); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) ListHomelessness(ctx context.Context) ([]types.HomelessnessPoint, error) {
	rows, err := r.db.QueryContext(ctx, listHomelessnessSQL)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "homelessness")
	var out []types.HomelessnessPoint
	for rows.Next() {
		var p types.HomelessnessPoint
		if err := rows.Scan(&p.Area, &p.Quarter, &p.People); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) ListCrime(ctx context.Context, borough string) ([]types.CrimeRecord, error) {
	rows, err := r.db.QueryContext(ctx, listCrimeSQL, borough)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "crime")
	var out []types.CrimeRecord
	for rows.Next() {
		var c types.CrimeRecord
		if err := rows.Scan(&c.Borough, &c.Month, &c.Group, &c.Subgroup, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) ListCrimeBoroughs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, listCrimeBoroughsSQL)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "crime boroughs")
	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) ListPopulation(ctx context.Context, area string) ([]types.PopulationRow, error) {
	return r.listPopulation(ctx, listPopulationSQL, area)
}

func (r *repositoryImpl) ListPopulationAllAges(ctx context.Context) ([]types.PopulationRow, error) {
	return r.listPopulation(ctx, listPopulationAllAgesSQL)
}

func (r *repositoryImpl) listPopulation(ctx context.Context, query string, args ...any) ([]types.PopulationRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "population")
	var out []types.PopulationRow
	for rows.Next() {
		var p types.PopulationRow
		if err := rows.Scan(&p.AreaCode, &p.Area, &p.Age, &p.Year, &p.Population); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) UpsertLSOAs(ctx context.Context, lsoas []types.LSOA) error {
	return inTx(ctx, r.db, upsertLSOASQL, len(lsoas), func(i int) []any {
		l := lsoas[i]
		return []any{l.Code, l.Name, l.Ward, l.Borough, l.IMDRank, l.IMDDecile,
			l.IncomeDecile, l.EmploymentDecile, l.EducationDecile, l.HealthDecile,
			l.CrimeDecile, l.BarriersDecile, l.EnvironmentDecile}
	})
}

func (r *repositoryImpl) UpsertHomelessness(ctx context.Context, points []types.HomelessnessPoint) error {
	return inTx(ctx, r.db, upsertHomelessnessSQL, len(points), func(i int) []any {
		p := points[i]
		return []any{p.Area, p.Quarter, p.People}
	})
}

func (r *repositoryImpl) UpsertCrime(ctx context.Context, records []types.CrimeRecord) error {
	return inTx(ctx, r.db, upsertCrimeSQL, len(records), func(i int) []any {
		c := records[i]
		return []any{c.Borough, c.Month, c.Group, c.Subgroup, c.Count}
	})
}

func (r *repositoryImpl) UpsertPopulation(ctx context.Context, rows []types.PopulationRow) error {
	return inTx(ctx, r.db, upsertPopulationSQL, len(rows), func(i int) []any {
		p := rows[i]
		return []any{p.AreaCode, p.Area, p.Age, p.Year, p.Population}
	})
}

// inTx executes stmt once per row inside a single transaction.
func inTx(ctx context.Context, db *sql.DB, stmt string, n int, args func(i int) []any) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("rollback", "error", rbErr)
			}
		}
	}()
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() {
		if closeErr := prepared.Close(); closeErr != nil {
			slog.Error("close statement", "error", closeErr)
		}
	}()
	for i := 0; i < n; i++ {
		if _, err = prepared.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
