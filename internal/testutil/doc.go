// Package testutil contains fluent builders for raw decisions and summaries
// used across tests. Not intended for production usage.
package testutil
