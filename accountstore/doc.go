// Package accountstore provides [authcore.AccountStore] implementations.
//
// [Memory] keeps accounts in a map and is meant for development and tests.
// [SQL] persists accounts through database/sql. PostgreSQL is reached through
// the pgx stdlib driver and SQLite through modernc.org/sqlite; the schema is
// applied by embedded goose migrations when the store is opened.
//
// Both stores lower-case emails before every read and write, return
// [authcore.ErrAccountNotFound] on a lookup miss and [authcore.ErrEmailTaken]
// when Create hits an existing email.
package accountstore
