package database

// Dialect abstracts the database-specific SQL the case store needs. SQLite
// is the default per-case backend; PostgreSQL is the shared-server option.
// Everything else in the store is written against database/sql.
type Dialect interface {
	// DriverName returns the database/sql driver name.
	DriverName() string

	// DSN returns the data source name for opening a connection. For SQLite
	// this is the file path; for PostgreSQL a connection string.
	DSN(pathOrConnStr string) string

	// Placeholder returns the parameter placeholder for the given 1-based
	// index. SQLite: "?", PostgreSQL: "$1", "$2", ...
	Placeholder(index int) string

	// QuoteColumn quotes a column name when the dialect requires it
	// ("user" is reserved in PostgreSQL).
	QuoteColumn(name string) string

	// CreateSchemaSQL returns the full DDL for a new case store: tables,
	// uniqueness constraints, and supporting indexes, in execution order.
	CreateSchemaSQL() []string

	// InsertEventSQL returns the parameterized event INSERT with a
	// RETURNING clause yielding the new event_pk.
	InsertEventSQL() string

	// WidenEntitySQL returns the UPDATE widening an entity's
	// first_seen/last_seen bounds to include a new event_ts.
	WidenEntitySQL() string

	// HourBucketSQL returns an expression truncating a timestamp column to
	// its hour, used for per-source active-hour counts.
	HourBucketSQL(column string) string
}
