package storage

import (
	"context"
	"fmt"
	"os"
	"sort"

	"salesbot/pkg"
	"salesbot/src/logger"

	"github.com/bytedance/sonic"
)

// SeedFile is a JSON document mapping table names to records. Records with an
// "id" keep it; records without one get the next free id.
type SeedFile map[string][]pkg.Record

// LoadSeedFile reads a seed file and writes its records into the CRM store.
// A missing file is not an error.
func LoadSeedFile(ctx context.Context, store *SQLiteCRMStore, filePath string) (int, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		logger.Warn().Str("path", filePath).Msg("⚠️ CRM seed file not found, skipping")
		return 0, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := sonic.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	return Seed(ctx, store, seed)
}

// Seed writes every record of seed into the store, tables in name order
func Seed(ctx context.Context, store *SQLiteCRMStore, seed SeedFile) (int, error) {
	tables := make([]string, 0, len(seed))
	for table := range seed {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	written := 0
	for _, table := range tables {
		for _, rec := range seed[table] {
			if id := rec.ID(); id > 0 {
				if err := store.Put(ctx, table, id, rec); err != nil {
					return written, fmt.Errorf("failed to seed %s/%d: %w", table, id, err)
				}
			} else if _, err := store.Create(ctx, table, rec); err != nil {
				return written, fmt.Errorf("failed to seed %s: %w", table, err)
			}
			written++
		}
	}

	logger.Info().Int("records", written).Int("tables", len(tables)).Msg("💾 CRM seed loaded")
	return written, nil
}
