package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	c := FromEnv()
	if c.Addr != ":8090" {
		t.Fatalf("addr=%q", c.Addr)
	}
	if c.OSDDBaseURL != DefaultOSDDBaseURL || c.ClientID != DefaultClientID {
		t.Fatalf("osdd=%q client=%q", c.OSDDBaseURL, c.ClientID)
	}
	if c.UpstreamTimeout != 30*time.Second {
		t.Fatalf("timeout=%v", c.UpstreamTimeout)
	}
	if c.ResponseHeaders["Access-Control-Allow-Origin"] != "*" {
		t.Fatalf("headers=%v", c.ResponseHeaders)
	}
	if c.RateLimit.Enabled || c.Stats.Enabled || c.Events.Enabled {
		t.Fatalf("optional features must default off: %+v", c)
	}
	if c.Stats.PoolSize != 16 || c.Stats.DialTimeout != 2*time.Second {
		t.Fatalf("stats pool=%d dial=%v", c.Stats.PoolSize, c.Stats.DialTimeout)
	}
	if c.Events.H3ParentRes != 2 {
		t.Fatalf("parent res=%d", c.Events.H3ParentRes)
	}
}

func TestLoad_StatsPoolAndParentRes(t *testing.T) {
	t.Setenv("STATS_POOL_SIZE", "4")
	t.Setenv("STATS_DIAL_TIMEOUT", "750ms")
	t.Setenv("H3_RES", "3")
	t.Setenv("H3_PARENT_RES", "3")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Stats.PoolSize != 4 || c.Stats.DialTimeout != 750*time.Millisecond {
		t.Fatalf("stats pool=%d dial=%v", c.Stats.PoolSize, c.Stats.DialTimeout)
	}
	if c.Events.H3ParentRes != -1 {
		t.Fatalf("parent res not finer-than-cell guarded: %d", c.Events.H3ParentRes)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OSDD_BASE_URL", "http://osdd.test/datasets/")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("EVENTS_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("H3_RES", "22")
	t.Setenv("DEFAULT_RESPONSE_HEADERS", "X-A=1; X-B = two ;broken")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.OSDDBaseURL != "http://osdd.test/datasets" {
		t.Fatalf("base url not trimmed: %q", c.OSDDBaseURL)
	}
	if c.UpstreamTimeout != 5*time.Second {
		t.Fatalf("timeout=%v", c.UpstreamTimeout)
	}
	if len(c.Events.Brokers) != 2 || c.Events.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers=%v", c.Events.Brokers)
	}
	if c.Events.H3Res != 15 {
		t.Fatalf("h3 res not clamped: %d", c.Events.H3Res)
	}
	if len(c.ResponseHeaders) != 2 || c.ResponseHeaders["X-B"] != "two" {
		t.Fatalf("headers=%v", c.ResponseHeaders)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	body := "addr: \":7000\"\nrate_limit_enabled: true\nrate_limit_rps: 2.5\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RATE_LIMIT_BURST", "3")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != ":7000" || !c.RateLimit.Enabled || c.RateLimit.RPS != 2.5 || c.RateLimit.Burst != 3 {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	c := FromEnv()
	c.RateLimit.Enabled = true
	c.RateLimit.RPS = 0
	c.UpstreamTimeout = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
