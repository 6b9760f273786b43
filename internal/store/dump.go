package store

import (
	"context"
	"fmt"
)

// DumpTable streams every row of a table as a column→value map, for backups.
// The table name must be one of Tables.
func (s *Store) DumpTable(ctx context.Context, table string, fn func(row map[string]any) error) error {
	if err := validTable(table); err != nil {
		return err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT * FROM %s`, table))
	if err != nil {
		return err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return err
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountRows returns the row count of a table. The table name must be one of
// Tables.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}
	var n int64
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table))
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteAllRows empties a table and reports how many rows were removed. The
// table name must be one of Tables.
func (s *Store) DeleteAllRows(ctx context.Context, table string) (int64, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, table))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
