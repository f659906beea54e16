// Package sessionstore provides oauth2client.Cache implementations for sharing a
// Sierra access token between client instances.
//
//   - Memory: process-local map, for tests and long-running services
//   - Session: a gorilla/sessions store bound to one HTTP request
//   - SQLite: a database file shared across processes (modernc.org/sqlite, no cgo)
//
// Concurrent writers are not coordinated; the last write wins.
package sessionstore
