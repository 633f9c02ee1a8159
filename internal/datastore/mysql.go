package datastore

import (
	"fmt"

	"github.com/tphakala/aquatrack/internal/conf"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	mySQL := settings.Output.MySQL
	if mySQL.Username == "" || mySQL.Database == "" || mySQL.Host == "" || mySQL.Port == "" {
		return fmt.Errorf("MySQL configuration is incomplete")
	}
	return nil
}

// Open sets up the MySQL database connection and runs migrations.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	mySQL := store.Settings.Output.MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		mySQL.Username, mySQL.Password, mySQL.Host, mySQL.Port, mySQL.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: createGormLogger(),
	})
	if err != nil {
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "MySQL", fmt.Sprintf("%s:%s/%s", mySQL.Host, mySQL.Port, mySQL.Database))
}

// Close for MySQL delegates to the shared connection close.
func (store *MySQLStore) Close() error {
	return store.DataStore.Close()
}
