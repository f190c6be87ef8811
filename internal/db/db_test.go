package db

import (
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first version 1, got %d", first)
	}

	up, _, err := src.ReadUp(first)
	if err != nil {
		t.Fatalf("read up: %v", err)
	}
	body, err := io.ReadAll(up)
	_ = up.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, table := range []string{"chat_bots", "dialogues"} {
		if !strings.Contains(string(body), table) {
			t.Fatalf("up migration does not create %s", table)
		}
	}

	down, _, err := src.ReadDown(first)
	if err != nil {
		t.Fatalf("read down: %v", err)
	}
	_ = down.Close()
}
