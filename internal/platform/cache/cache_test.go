package cache

import (
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantAddr string
		wantDB   int
		wantErr  bool
	}{
		{name: "plain", url: "redis://localhost:6379", wantAddr: "localhost:6379"},
		{name: "db index", url: "redis://localhost:6379/3", wantAddr: "localhost:6379", wantDB: 3},
		{name: "password and port", url: "redis://:secret@cache:6380/2", wantAddr: "cache:6380", wantDB: 2},
		{name: "empty", url: "", wantErr: true},
		{name: "http scheme", url: "http://localhost:6379", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if opts.Addr != tt.wantAddr {
				t.Errorf("addr = %q, want %q", opts.Addr, tt.wantAddr)
			}
			if opts.DB != tt.wantDB {
				t.Errorf("db = %d, want %d", opts.DB, tt.wantDB)
			}
		})
	}
}

func TestNew_UnreachableServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping dial test in short mode")
	}
	if _, err := New(t.Context(), "redis://127.0.0.1:59999"); err == nil {
		t.Fatal("New() should fail when nothing listens on the port")
	}
}

func TestGetJSON_UnreachableIsNotMiss(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	opts, err := ParseURL("redis://localhost:59999")
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	c := &Cache{Client: redis.NewClient(opts)}
	defer c.Close()

	var v map[string]string
	err = c.GetJSON(t.Context(), "topics", &v)
	if err == nil {
		t.Fatal("GetJSON() should fail for unreachable host")
	}
	if errors.Is(err, ErrMiss) {
		t.Error("GetJSON() error should not be ErrMiss for connection failures")
	}
}

func TestDelete_NoKeys(t *testing.T) {
	c := &Cache{}
	if err := c.Delete(t.Context()); err != nil {
		t.Errorf("Delete() with no keys error = %v", err)
	}
}
