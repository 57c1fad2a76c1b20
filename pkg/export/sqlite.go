// Package export writes parsed prefetch evidence into a SQLite timeline
// database, one row per inferred program execution.
//
// Investigators usually merge prefetch timelines with other artifact
// sources; a plain SQLite file is the least-friction interchange format.
package export

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ForensicRS/frnsc-prefetch/pkg/prefetch"
)

// ExecutionRow is one program-execution timeline row.
type ExecutionRow struct {
	ID         uint      `gorm:"primaryKey"`
	Executable string    `gorm:"index"`
	User       string
	Timestamp  time.Time `gorm:"index"`
	Filetime   uint64
	RunCount   uint32
	Version    uint32
	Hash       string
}

// TableName keeps the table name stable regardless of gorm pluralization
// settings.
func (ExecutionRow) TableName() string { return "prefetch_executions" }

// DB is an open timeline database.
type DB struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite timeline database at path and
// migrates the schema.
func Open(path string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open timeline database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&ExecutionRow{}); err != nil {
		return nil, fmt.Errorf("migrate timeline database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WriteRecord inserts one row per activity of the record. Records with no
// run times produce no rows.
func (d *DB) WriteRecord(rec *prefetch.Record) error {
	var rows []ExecutionRow
	for a := range rec.Activities() {
		rows = append(rows, ExecutionRow{
			Executable: a.Executable,
			User:       a.User,
			Timestamp:  a.Timestamp.Time(),
			Filetime:   uint64(a.Timestamp),
			RunCount:   rec.RunCount,
			Version:    rec.Version,
			Hash:       fmt.Sprintf("%08X", rec.Hash),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := d.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert timeline rows for %s: %w", rec.ExecutableName, err)
	}
	return nil
}

// WriteRecords inserts every record's activities.
func (d *DB) WriteRecords(records []*prefetch.Record) error {
	for _, rec := range records {
		if err := d.WriteRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// CountExecutions returns the number of stored execution rows.
func (d *DB) CountExecutions() (int64, error) {
	var count int64
	if err := d.db.Model(&ExecutionRow{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
