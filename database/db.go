/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"database/sql"
	"embed"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	"github.com/bisturi/tracksync/config"
)

const driverName = "sqlite3"

//go:embed sql/*.sql
var SQLFiles embed.FS

// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

// NewDataSource opens the history database and applies pending migrations.
func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.History.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		if _, errMigrate := Migrate(con, migrate.Up); errMigrate != nil {
			_ = con.Close()
			err = errMigrate
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errors.New("history database is not initialized")
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dns)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	err = db.Ping()
	if err != nil {
		logrus.WithError(err).WithField("dns", dns).Error("database connection error")
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrations is the embedded migration source for the history schema.
func Migrations() migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: SQLFiles,
		Root:       "sql",
	}
}

// Migrate applies (Up) or rolls back (Down) the embedded migrations and returns how many ran.
func Migrate(db *sql.DB, direction migrate.MigrationDirection) (int, error) {
	n, err := migrate.Exec(db, driverName, Migrations(), direction)
	if err != nil {
		return n, errors.Wrap(err, "failed to run migrations")
	}
	return n, nil
}

func (d Datasource) Close() error {
	return d.Conn.Close()
}
