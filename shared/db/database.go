package db

import (
	"database/sql"
)

// Database is a connectable store backing the room registry.
type Database interface {
	// Connect opens the store and brings its schema up to date.
	Connect() error
	Close() error
	// DB returns the underlying handle; nil before Connect.
	DB() *sql.DB
}
