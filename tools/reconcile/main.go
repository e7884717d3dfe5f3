// Command reconcile recomputes the denormalized counters from the base tables
// and reports (or repairs) any drift. Counter updates ride in the same
// transaction as their entity writes, so drift normally only appears after a
// crash between an entity write and its compensation, or after manual edits.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dbURL  string
	outDir string
	apply  bool
}

type drift struct {
	Table    string
	ID       string
	Field    string
	Stored   int
	Computed int
}

// counterSpec ties one denormalized counter to the query that recomputes it
// from the base tables.
type counterSpec struct {
	table string
	field string
	query string
}

var specs = []counterSpec{
	{
		table: "farmers",
		field: "farms_count",
		query: `
SELECT p.id, p.farms_count, COUNT(c.id)
FROM farmers p
LEFT JOIN farms c ON c.farmer_id = p.id
GROUP BY p.id, p.farms_count`,
	},
	{
		table: "farms",
		field: "zones_count",
		query: `
SELECT p.id, p.zones_count, COUNT(c.id)
FROM farms p
LEFT JOIN zones c ON c.farm_id = p.id
GROUP BY p.id, p.zones_count`,
	},
	{
		table: "farms",
		field: "livestock_count",
		query: `
SELECT p.id, p.livestock_count, COUNT(c.id)
FROM farms p
LEFT JOIN livestock c ON c.farm_id = p.id
GROUP BY p.id, p.livestock_count`,
	},
	{
		table: "farms",
		field: "active_alerts",
		query: `
SELECT p.id, p.active_alerts, COUNT(c.id)
FROM farms p
LEFT JOIN alerts c ON c.farm_id = p.id AND c.resolved = FALSE
GROUP BY p.id, p.active_alerts`,
	},
	{
		table: "zones",
		field: "current_livestock_count",
		query: `
SELECT p.id, p.current_livestock_count, COUNT(c.id)
FROM zones p
LEFT JOIN livestock c ON c.zone_id = p.id
GROUP BY p.id, p.current_livestock_count`,
	},
	{
		table: "sensors",
		field: "active_alerts",
		query: `
SELECT p.id, p.active_alerts, COUNT(c.id)
FROM sensors p
LEFT JOIN alerts c ON c.sensor_id = p.id AND c.resolved = FALSE
GROUP BY p.id, p.active_alerts`,
	},
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	ctx := context.Background()
	var drifts []drift
	for _, spec := range specs {
		found, err := findDrift(ctx, db, spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "recompute %s.%s: %v\n", spec.table, spec.field, err)
			os.Exit(2)
		}
		drifts = append(drifts, found...)
	}
	sort.Slice(drifts, func(i, j int) bool {
		if drifts[i].Table != drifts[j].Table {
			return drifts[i].Table < drifts[j].Table
		}
		if drifts[i].ID != drifts[j].ID {
			return drifts[i].ID < drifts[j].ID
		}
		return drifts[i].Field < drifts[j].Field
	})

	if err := writeDriftReport(cfg.outDir, drifts); err != nil {
		fmt.Fprintln(os.Stderr, "write drift report:", err)
		os.Exit(2)
	}

	if cfg.apply && len(drifts) > 0 {
		repaired, err := repair(ctx, db, drifts)
		if err != nil {
			fmt.Fprintln(os.Stderr, "repair:", err)
			os.Exit(2)
		}
		fmt.Printf("Repaired %d counter(s)\n", repaired)
	}

	fmt.Printf("Found %d drifted counter(s); report written to %s\n", len(drifts), cfg.outDir)
	if len(drifts) > 0 && !cfg.apply {
		fmt.Println("Run again with --apply to repair")
	}
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN")
	flag.StringVar(&cfg.outDir, "out", "./out", "output directory")
	flag.BoolVar(&cfg.apply, "apply", false, "write the recomputed values back")
	flag.Parse()

	if cfg.dbURL == "" {
		return cfg, errors.New("missing --db or DATABASE_URL/PG_DSN")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func findDrift(ctx context.Context, db *sql.DB, spec counterSpec) ([]drift, error) {
	rows, err := db.QueryContext(ctx, spec.query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []drift
	for rows.Next() {
		var id string
		var stored, computed int
		if err := rows.Scan(&id, &stored, &computed); err != nil {
			return nil, err
		}
		if stored == computed {
			continue
		}
		result = append(result, drift{
			Table:    spec.table,
			ID:       id,
			Field:    spec.field,
			Stored:   stored,
			Computed: computed,
		})
	}
	return result, rows.Err()
}

func repair(ctx context.Context, db *sql.DB, drifts []drift) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, d := range drifts {
		// Table and field come from the fixed counter list, never from input.
		query := fmt.Sprintf(`UPDATE %s SET %s = $1, updated_at = NOW() WHERE id = $2`, d.Table, d.Field)
		if _, err := tx.ExecContext(ctx, query, d.Computed, d.ID); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("update %s %s: %w", d.Table, d.ID, err)
		}
		repaired++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return repaired, nil
}

func writeDriftReport(outDir string, drifts []drift) error {
	path := filepath.Join(outDir, "counter_drift.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"table", "id", "field", "stored", "computed", "delta"}); err != nil {
		return err
	}
	for _, d := range drifts {
		if err := writer.Write([]string{
			d.Table,
			d.ID,
			d.Field,
			strconv.Itoa(d.Stored),
			strconv.Itoa(d.Computed),
			strconv.Itoa(d.Computed - d.Stored),
		}); err != nil {
			return err
		}
	}
	return nil
}
