package pgtest

import (
	"errors"
	"net"
	"strings"
	"testing"
)

func TestUpDDL_ExcludesDown(t *testing.T) {
	ddl, err := upDDL()
	if err != nil {
		t.Fatalf("upDDL: %v", err)
	}
	if strings.Contains(ddl, "DROP TABLE") {
		t.Fatalf("Up DDL must not contain Down statements")
	}
	if !strings.Contains(ddl, "sauat.refresh_tokens") {
		t.Fatalf("expected refresh_tokens table in DDL")
	}
}

func TestShouldSkip(t *testing.T) {
	t.Setenv("CI", "")

	if shouldSkip(nil) {
		t.Fatal("nil error must not skip")
	}
	if !shouldSkip(&net.OpError{Op: "dial", Err: errors.New("refused")}) {
		t.Fatal("net.OpError should skip")
	}
	if !shouldSkip(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")) {
		t.Fatal("connection refused should skip")
	}
	if shouldSkip(errors.New("password authentication failed")) {
		t.Fatal("auth failure must not skip")
	}

	t.Setenv("CI", "true")
	if shouldSkip(errors.New("connection refused")) {
		t.Fatal("CI must never skip")
	}
}
