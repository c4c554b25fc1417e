package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/criner-dev/criner/pkg/key"
	"github.com/criner-dev/criner/pkg/log"
	"github.com/criner-dev/criner/pkg/model"
	bolt "go.etcd.io/bbolt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run schema migrations against the ledger database",
	Long: `migrate backs up criner.db, then rewrites any "result" row whose
key predates the result-kind segment ("crate:version:process:process-
version", four parts) into the current five-part form
("crate:version:process:process-version:result-kind"), inferred from
the row's own TaskResult.Kind. Old rows are left in place for rollback;
delete them manually once the migration is verified.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
	migrateCmd.Flags().String("backup", "", "Path to back up the database to before migrating (default: <db-path>.backup)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db-path")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")

	logger := log.WithComponent("migrate")

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database not found at %s", dbPath)
	}

	logger.Info().Str("db", dbPath).Bool("dry_run", dryRun).Msg("starting migration")

	if !dryRun {
		if backupPath == "" {
			backupPath = dbPath + ".backup"
		}
		logger.Info().Str("backup", backupPath).Msg("creating backup")
		if err := copyFile(dbPath, backupPath); err != nil {
			return fmt.Errorf("failed to create backup: %v", err)
		}
		logger.Info().Msg("backup created")
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	migrated, total, err := migrateResultKeys(db, dryRun)
	if err != nil {
		return fmt.Errorf("migration failed: %v", err)
	}

	if dryRun {
		logger.Info().Int("would_migrate", total).Msg("dry run complete, no changes made")
	} else {
		logger.Info().Int("migrated", migrated).Int("candidates", total).Msg("migration complete")
	}
	return nil
}

// migrateResultKeys scans the "result" bucket for legacy four-part
// keys and, unless dryRun, writes each row back under its five-part
// equivalent. It reports (migrated, candidates, err); candidates is
// populated even in a dry run so callers can report what would happen.
func migrateResultKeys(db *bolt.DB, dryRun bool) (migrated, candidates int, err error) {
	logger := log.WithComponent("migrate")

	type legacyRow struct {
		newKey string
		value  []byte
	}
	var legacy []legacyRow
	scratch := new(bytes.Buffer)

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte("result"))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			parts := strings.Split(string(k), string(key.Sep))
			if len(parts) != 4 {
				return nil
			}
			var r model.TaskResult
			if err := json.Unmarshal(v, &r); err != nil {
				logger.Warn().Str("key", string(k)).Err(err).Msg("skipping row with invalid JSON")
				return nil
			}
			kind := resultKindSegment(r.Kind)
			if kind == "" {
				return nil
			}
			newKey := key.AppendResult(scratch, parts[0], parts[1], parts[2], parts[3], kind)
			legacy = append(legacy, legacyRow{newKey: newKey, value: append([]byte(nil), v...)})
			return nil
		})
	})
	if err != nil {
		return 0, 0, err
	}
	candidates = len(legacy)

	if dryRun || candidates == 0 {
		return 0, candidates, nil
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte("result"))
		for _, row := range legacy {
			if err := b.Put([]byte(row.newKey), row.value); err != nil {
				return fmt.Errorf("failed to write %s: %w", row.newKey, err)
			}
			migrated++
		}
		return nil
	})
	return migrated, candidates, err
}

func resultKindSegment(k model.TaskResultKind) string {
	switch k {
	case model.ResultDownload:
		return "download"
	case model.ResultExplodedCrate:
		return "exploded_crate"
	default:
		return ""
	}
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
