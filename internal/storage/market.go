package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog"

	"marketcollector/internal/section"
)

// MarketFileName is the shared store file inside --sharedir.
const MarketFileName = "marketdata.sqlite3"

const (
	createPairsSQL = `CREATE TABLE IF NOT EXISTS pairs (
        base TEXT,
        coin TEXT,
        last_updated INT,
        PRIMARY KEY(base, coin)
    );`

	createRankingsSQL = `CREATE TABLE IF NOT EXISTS rankings (
        base TEXT,
        coin TEXT,
        coinmarketcap INT DEFAULT 0,
        altrank REAL DEFAULT 0.0,
        galaxyscore REAL DEFAULT 0.0,
        PRIMARY KEY(base, coin)
    );`

	createPricesSQL = `CREATE TABLE IF NOT EXISTS prices (
        base TEXT,
        coin TEXT,
        change_1h REAL DEFAULT 0.0,
        change_24h REAL DEFAULT 0.0,
        change_7d REAL DEFAULT 0.0,
        change_14d REAL DEFAULT 0.0,
        change_30d REAL DEFAULT 0.0,
        change_200d REAL DEFAULT 0.0,
        change_1y REAL DEFAULT 0.0,
        volatility_24h REAL DEFAULT 0.0,
        PRIMARY KEY(base, coin)
    );`

	hasPairSQL = `SELECT 1 FROM pairs WHERE base = ? AND coin = ? LIMIT 1;`
	hasCoinSQL = `SELECT 1 FROM pairs WHERE coin = ? LIMIT 1;`

	insertPairSQL    = `INSERT INTO pairs (base, coin, last_updated) VALUES (?, ?, ?);`
	insertRankingSQL = `INSERT INTO rankings (base, coin) VALUES (?, ?);`
	insertPriceSQL   = `INSERT INTO prices (base, coin) VALUES (?, ?);`

	deletePairSQL    = `DELETE FROM pairs WHERE base = ? AND coin = ?;`
	deleteRankingSQL = `DELETE FROM rankings WHERE base = ? AND coin = ?;`
	deletePriceSQL   = `DELETE FROM prices WHERE base = ? AND coin = ?;`

	touchPairSQL = `UPDATE pairs SET last_updated = ? WHERE base = ? AND coin = ?;`
	touchCoinSQL = `UPDATE pairs SET last_updated = ? WHERE coin = ?;`

	getPairSQL    = `SELECT base, coin, last_updated FROM pairs WHERE base = ? AND coin = ?;`
	countPairsSQL = `SELECT COUNT(*) FROM pairs;`

	getRankingSQL = `SELECT base, coin, coinmarketcap, altrank, galaxyscore FROM rankings WHERE base = ? AND coin = ?;`
	getPriceSQL   = `SELECT base, coin, change_1h, change_24h, change_7d, change_14d, change_30d, change_200d, change_1y, volatility_24h
        FROM prices WHERE base = ? AND coin = ?;`

	stalePairsSQL = `SELECT base, coin FROM pairs WHERE last_updated < ?;`
)

// Forward-additive schema: missing columns are created with these defaults,
// no column is ever dropped.
var (
	rankingColumnDefs = map[string]string{
		"coinmarketcap": "INT DEFAULT 0",
		"altrank":       "REAL DEFAULT 0.0",
		"galaxyscore":   "REAL DEFAULT 0.0",
	}
	priceColumnDefs = map[string]string{
		"change_1h":      "REAL DEFAULT 0.0",
		"change_24h":     "REAL DEFAULT 0.0",
		"change_7d":      "REAL DEFAULT 0.0",
		"change_14d":     "REAL DEFAULT 0.0",
		"change_30d":     "REAL DEFAULT 0.0",
		"change_200d":    "REAL DEFAULT 0.0",
		"change_1y":      "REAL DEFAULT 0.0",
		"volatility_24h": "REAL DEFAULT 0.0",
	}
)

// MarketStore owns mutation rights over the shared market-data file.
// Sibling processes read it with their own read-only connections; WAL mode
// keeps their snapshots consistent while a section commits.
type MarketStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenMarket opens (creating if absent) the shared store at path.
func OpenMarket(path string, logger zerolog.Logger) (*MarketStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open market store: %w", err)
	}

	// The collector is the single writer; one connection avoids intra-process
	// lock contention between the section transaction and bulk resets.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	return &MarketStore{
		db:     db,
		logger: logger.With().Str("component", "market_store").Logger(),
	}, nil
}

// Close releases the underlying database handle.
func (s *MarketStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates missing tables and adds missing columns with defaults.
func (s *MarketStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createPairsSQL, createRankingsSQL, createPricesSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	if err := s.ensureColumns(ctx, "rankings", rankingColumnDefs); err != nil {
		return err
	}
	return s.ensureColumns(ctx, "prices", priceColumnDefs)
}

func (s *MarketStore) ensureColumns(ctx context.Context, table string, defs map[string]string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			defaultVal sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultVal, &primaryKey); err != nil {
			return fmt.Errorf("scan %s schema: %w", table, err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	missing := make([]string, 0)
	for name := range defs {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	for _, name := range missing {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", table, name, defs[name])
		if _, err := s.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, name, err)
		}
		s.logger.Info().Str("table", table).Str("column", name).Msg("schema upgraded with new column")
	}
	return nil
}

// ResetColumn bulk-resets one column across all rows of a table. Used at
// process start and before ranking fetches for current-round-only signals.
func (s *MarketStore) ResetColumn(ctx context.Context, table, column string, value float64) error {
	if err := validateColumn(table, column); err != nil {
		return err
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s = ?;", table, column)
	if _, err := s.db.ExecContext(ctx, stmt, value); err != nil {
		return fmt.Errorf("reset %s.%s: %w", table, column, err)
	}
	return nil
}

// DeleteStale removes every pair whose last_updated is older than cutoff,
// cascading over rankings and prices, and reports how many pairs went.
func (s *MarketStore) DeleteStale(ctx context.Context, cutoff int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin retention: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, stalePairsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale pairs: %w", err)
	}

	type key struct{ base, coin string }
	stale := make([]key, 0)
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.base, &k.coin); err != nil {
			rows.Close()
			return 0, err
		}
		stale = append(stale, k)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, k := range stale {
		for _, stmt := range []string{deleteRankingSQL, deletePriceSQL, deletePairSQL} {
			if _, err := tx.ExecContext(ctx, stmt, k.base, k.coin); err != nil {
				return 0, fmt.Errorf("delete stale pair %s_%s: %w", k.base, k.coin, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit retention: %w", err)
	}
	return len(stale), nil
}

// Begin opens the transaction covering one section run. All upserts for the
// section commit together or not at all.
func (s *MarketStore) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin section transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// GetPair fetches a pair row.
func (s *MarketStore) GetPair(ctx context.Context, base, coin string) (Pair, error) {
	var p Pair
	err := s.db.QueryRowContext(ctx, getPairSQL, base, coin).Scan(&p.Base, &p.Coin, &p.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return Pair{}, ErrNotFound
	}
	if err != nil {
		return Pair{}, fmt.Errorf("get pair: %w", err)
	}
	return p, nil
}

// GetRanking fetches a ranking row.
func (s *MarketStore) GetRanking(ctx context.Context, base, coin string) (Ranking, error) {
	var r Ranking
	err := s.db.QueryRowContext(ctx, getRankingSQL, base, coin).
		Scan(&r.Base, &r.Coin, &r.CoinMarketCap, &r.AltRank, &r.GalaxyScore)
	if errors.Is(err, sql.ErrNoRows) {
		return Ranking{}, ErrNotFound
	}
	if err != nil {
		return Ranking{}, fmt.Errorf("get ranking: %w", err)
	}
	return r, nil
}

// GetPrice fetches a price row.
func (s *MarketStore) GetPrice(ctx context.Context, base, coin string) (Price, error) {
	var p Price
	err := s.db.QueryRowContext(ctx, getPriceSQL, base, coin).
		Scan(&p.Base, &p.Coin, &p.Change1h, &p.Change24h, &p.Change7d, &p.Change14d,
			&p.Change30d, &p.Change200d, &p.Change1y, &p.Volatility24h)
	if errors.Is(err, sql.ErrNoRows) {
		return Price{}, ErrNotFound
	}
	if err != nil {
		return Price{}, fmt.Errorf("get price: %w", err)
	}
	return p, nil
}

// CountPairs counts stored pairs.
func (s *MarketStore) CountPairs(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, countPairsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pairs: %w", err)
	}
	return count, nil
}

// Tx is the per-section transaction. Only the store hands these out;
// adapters never see one.
type Tx struct {
	tx *sql.Tx
}

// Commit makes the section's writes visible to readers atomically.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback reverts every write of the section run.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// HasPair reports whether a pair exists. The wildcard base matches any base
// holding the coin.
func (t *Tx) HasPair(ctx context.Context, base, coin string) (bool, error) {
	var (
		one int
		err error
	)
	if base == section.WildcardBase {
		err = t.tx.QueryRowContext(ctx, hasCoinSQL, coin).Scan(&one)
	} else {
		err = t.tx.QueryRowContext(ctx, hasPairSQL, base, coin).Scan(&one)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has pair: %w", err)
	}
	return true, nil
}

// AddPair creates the pair with its ranking and price rows atomically, all
// columns at their defaults and last_updated set to now. This is the only
// operation that introduces rows; the engine gates it on the index-provider
// policy.
func (t *Tx) AddPair(ctx context.Context, base, coin string, now int64) error {
	exists, err := t.HasPair(ctx, base, coin)
	if err != nil {
		return err
	}
	if exists {
		return ErrPairExists
	}

	if _, err := t.tx.ExecContext(ctx, insertPairSQL, base, coin, now); err != nil {
		return fmt.Errorf("insert pair: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, insertRankingSQL, base, coin); err != nil {
		return fmt.Errorf("insert ranking: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, insertPriceSQL, base, coin); err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

// RemovePair deletes the pair and its ranking and price rows atomically.
func (t *Tx) RemovePair(ctx context.Context, base, coin string) error {
	for _, stmt := range []string{deleteRankingSQL, deletePriceSQL, deletePairSQL} {
		if _, err := t.tx.ExecContext(ctx, stmt, base, coin); err != nil {
			return fmt.Errorf("remove pair: %w", err)
		}
	}
	return nil
}

// UpdateValues updates the named subset of columns in rankings or prices.
// The wildcard base is permitted for ranking updates only.
func (t *Tx) UpdateValues(ctx context.Context, table, base, coin string, fields map[string]float64) error {
	defs, ok := map[string]map[string]string{
		"rankings": rankingColumnDefs,
		"prices":   priceColumnDefs,
	}[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if len(fields) == 0 {
		return nil
	}

	columns := make([]string, 0, len(fields))
	for column := range fields {
		if _, ok := defs[column]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	assignments := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+2)
	for _, column := range columns {
		assignments = append(assignments, column+" = ?")
		args = append(args, fields[column])
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE ", table, strings.Join(assignments, ", "))
	if base == section.WildcardBase {
		if table != "rankings" {
			return fmt.Errorf("%w: wildcard base only valid for rankings", ErrUnknownTable)
		}
		stmt += "coin = ?;"
		args = append(args, coin)
	} else {
		stmt += "base = ? AND coin = ?;"
		args = append(args, base, coin)
	}

	if _, err := t.tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Touch refreshes last_updated for a pair. The wildcard base touches every
// base holding the coin.
func (t *Tx) Touch(ctx context.Context, base, coin string, now int64) error {
	var err error
	if base == section.WildcardBase {
		_, err = t.tx.ExecContext(ctx, touchCoinSQL, now, coin)
	} else {
		_, err = t.tx.ExecContext(ctx, touchPairSQL, now, base, coin)
	}
	if err != nil {
		return fmt.Errorf("touch pair: %w", err)
	}
	return nil
}

func validateColumn(table, column string) error {
	switch table {
	case "rankings":
		if _, ok := rankingColumnDefs[column]; ok {
			return nil
		}
	case "prices":
		if _, ok := priceColumnDefs[column]; ok {
			return nil
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
}
