package cache

import "testing"

func TestParseRedisURL_PlainHostPort(t *testing.T) {
	addr, pw, db := parseRedisURL("localhost:6379")
	if addr != "localhost:6379" || pw != "" || db != 0 {
		t.Fatalf("unexpected parse: %s %s %d", addr, pw, db)
	}
}

func TestParseRedisURL_WithAuthAndDB(t *testing.T) {
	addr, pw, db := parseRedisURL("redis://:secret@cache.internal:6380/3")
	if addr != "cache.internal:6380" {
		t.Fatalf("addr = %s", addr)
	}
	if pw != "secret" {
		t.Fatalf("pw = %s", pw)
	}
	if db != 3 {
		t.Fatalf("db = %d", db)
	}
}
