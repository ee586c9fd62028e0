package database

import (
	"database/sql"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/shramik/internal/models"
	"github.com/example/shramik/internal/utils"
)

var db *gorm.DB

// Options tune the connection.
type Options struct {
	// Migrate runs schema migrations after connecting.
	Migrate bool
	// LogLevel is the gorm log level: silent, error, warn or info.
	LogLevel string
}

// Connect initializes the database connection and optionally migrates.
func Connect(dsn string, opts Options) (*gorm.DB, error) {
	if db != nil {
		return db, nil
	}

	if err := ensureDatabase(dsn); err != nil {
		utils.Logger.WithError(err).Warn("could not ensure database exists")
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(opts.LogLevel)),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		utils.Logger.WithError(err).Warn("failed to ensure uuid-ossp extension")
	}

	if opts.Migrate {
		if err := Migrate(conn); err != nil {
			return nil, err
		}
	}

	db = conn
	return db, nil
}

// DB exposes the initialized gorm.DB instance.
func DB() *gorm.DB {
	return db
}

// Migrate creates or updates every table plus the constraints AutoMigrate
// cannot express.
func Migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.Profile{},
		&models.LoginCode{},
		&models.Job{},
		&models.Application{},
		&models.ShiftOtp{},
		&models.ShiftLog{},
		&models.Rating{},
		&models.Payment{},
		&models.SafetyFundContribution{},
		&models.ShiftEvent{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}

	// At most one ongoing shift per (job, contractor, worker).
	return conn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_shift_logs_one_ongoing
		ON shift_logs (job_id, contractor_id, worker_id)
		WHERE status = 'ongoing'`).Error
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info", "debug":
		return logger.Info
	default:
		return logger.Warn
	}
}

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	sqlDB, err := sql.Open("postgres", parsed.String())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	utils.Logger.WithField("database", dbName).Info("creating database")
	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
