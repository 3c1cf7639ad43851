// Package cache implements the per-connection prepared-statement cache:
// SQL text maps to a server-side statement name and its parameter/result
// descriptions.
package cache

import (
	"sync"

	"github.com/elbaro/pyros/protocol"
)

// Statement is a prepared statement bound to one Connection: its
// server-side name, the original SQL text, the parameter OID vector the
// server inferred via ParameterDescription, and the result field
// descriptions from RowDescription (nil when the statement returns no
// rows).
type Statement struct {
	Name       string
	SQL        string
	ParamOIDs  []protocol.OID
	Fields     []FieldDescription
	NoFields   bool // RowDescription was NoData, i.e. this statement never returns rows
}

// FieldDescription mirrors one column of a RowDescription message.
type FieldDescription struct {
	Name         string
	TableOID     uint32
	ColumnAttNum int16
	TypeOID      protocol.OID
	TypeLen      int16
	TypeMod      int32
	Format       protocol.FormatCode
}

// Cache maps SQL text to its prepared Statement. Entries are never evicted
// within a connection's lifetime: the source protocol has no notion of
// statement expiry short of an explicit Close(statement), which this cache
// never issues.
type Cache struct {
	mu         sync.RWMutex
	statements map[string]*Statement
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{statements: make(map[string]*Statement)}
}

// Get returns the cached statement for sql, and whether it was found.
func (c *Cache) Get(sql string) (*Statement, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stmt, ok := c.statements[sql]
	return stmt, ok
}

// Set inserts stmt into the cache keyed by its SQL text, overwriting any
// previous entry for the same text (the connection itself only calls Set
// after a Get miss for that text).
func (c *Cache) Set(stmt *Statement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements[stmt.SQL] = stmt
}

// Delete removes the entry for sql, if any. Used when a statement was
// inserted optimistically ahead of its ParseComplete and the Parse then
// failed.
func (c *Cache) Delete(sql string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statements, sql)
}

// Len reports the number of cached statements.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.statements)
}
