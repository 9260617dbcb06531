package storage

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quartzlabs/econd/internal/config"
	"github.com/quartzlabs/econd/internal/port"
)

// New selects and constructs the storage backend from configuration. Each
// backend owns its resource lifecycle between Load and Close.
func New(cfg config.Config, log *logrus.Logger) (port.Storage, error) {
	defaultBalance := cfg.Currency.DefaultBalance.Decimal

	switch strings.ToUpper(cfg.Storage.Type) {
	case "", "JSON":
		return NewJSONAdapter(cfg.Storage.File, defaultBalance), nil

	case "SQLITE":
		db, err := OpenSQLite(cfg.Storage)
		if err != nil {
			return nil, err
		}
		return NewSQLAdapter(db, SQLiteDialect{}, cfg.Storage.TablePrefix, defaultBalance, log), nil

	case "MYSQL":
		db, err := OpenMySQL(cfg.Storage)
		if err != nil {
			return nil, err
		}
		return NewSQLAdapter(db, MySQLDialect{}, cfg.Storage.TablePrefix, defaultBalance, log), nil

	case "POSTGRESQL", "POSTGRES":
		db, err := OpenPostgres(cfg.Storage)
		if err != nil {
			return nil, err
		}
		return NewSQLAdapter(db, PostgresDialect{}, cfg.Storage.TablePrefix, defaultBalance, log), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}
