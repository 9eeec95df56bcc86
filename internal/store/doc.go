// Package store defines the notebook model and the Repository contract used to
// persist it. Implementations live in internal/storage/{memory,postgres,sqlite};
// this package must not import database drivers or concrete clients.
package store
