package store

import (
	"context"
	"fmt"
	"strings"
)

// SeedSymbols inserts known symbols, ignoring ones already present.
// Called at startup from the configured symbol list.
func (s *Store) SeedSymbols(ctx context.Context, symbols map[string]string) error {
	for sym, name := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		_, err := s.DB.ExecContext(ctx,
			`INSERT INTO known_symbols (symbol, name, enabled) VALUES (?, ?, 1)
			ON CONFLICT(symbol) DO NOTHING`, sym, name)
		if err != nil {
			return fmt.Errorf("store: seed symbol %s: %w", sym, err)
		}
	}
	return nil
}

// IsKnownSymbol reports whether a ticker is an enabled known symbol.
func (s *Store) IsKnownSymbol(ctx context.Context, symbol string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM known_symbols WHERE symbol = ? AND enabled = 1`,
		strings.ToUpper(symbol)).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListSymbols returns all enabled symbols, sorted.
func (s *Store) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT symbol FROM known_symbols WHERE enabled = 1 ORDER BY symbol ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}
