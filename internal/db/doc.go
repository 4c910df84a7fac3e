// Package db owns the PostgreSQL side of the employee portal: resolving the
// connection parameters from the environment, building the one shared
// connection pool, watching its idle connections, applying the schema and
// the small repositories the HTTP layer reads through.
package db
