// Package identity is warden's credential store.
//
// It owns accounts, their password credentials and the links between accounts
// and external identity providers. Two implementations of Store are provided:
// PostgresStore for production and MemoryStore for tests and database-less runs.
//
// Account values never carry credential material; use Store.GetCredential.
package identity
