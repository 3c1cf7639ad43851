package cache

import (
	"sync"
	"testing"

	"github.com/elbaro/pyros/protocol"
)

func TestCacheGetMiss(t *testing.T) {
	c := New()
	if _, ok := c.Get("SELECT 1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	if c.Len() != 0 {
		t.Fatalf("unexpected length %d, expected 0", c.Len())
	}
}

func TestCacheSetGet(t *testing.T) {
	c := New()
	stmt := &Statement{
		Name:      "pyros_1",
		SQL:       "SELECT $1::int4",
		ParamOIDs: []protocol.OID{protocol.OIDInt4},
		Fields: []FieldDescription{
			{Name: "int4", TypeOID: protocol.OIDInt4},
		},
	}
	c.Set(stmt)

	got, ok := c.Get(stmt.SQL)
	if !ok {
		t.Fatal("expected cache hit after Set")
	}
	if got != stmt {
		t.Fatalf("unexpected statement pointer returned")
	}
	if c.Len() != 1 {
		t.Fatalf("unexpected length %d, expected 1", c.Len())
	}
}

func TestCacheSetOverwrite(t *testing.T) {
	c := New()
	sql := "SELECT 1"
	c.Set(&Statement{Name: "a", SQL: sql})
	c.Set(&Statement{Name: "b", SQL: sql})

	got, ok := c.Get(sql)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Name != "b" {
		t.Fatalf("unexpected name %q, expected %q", got.Name, "b")
	}
	if c.Len() != 1 {
		t.Fatalf("unexpected length %d, expected 1 (overwrite, not append)", c.Len())
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sql := "SELECT " + string(rune('a'+i%26))
			c.Set(&Statement{Name: sql, SQL: sql})
			c.Get(sql)
		}(i)
	}
	wg.Wait()
}
