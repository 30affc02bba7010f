package database

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(user string, password string, database string, instance string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@%s/%s?parseTime=true&loc=UTC", user, password, instance, database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	return db, nil
}
