package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/tradepost/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
	if err := migrate.ValidateDir(""); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) != len(onDisk) {
		t.Fatalf("embedded %d migrations, disk has %d", len(embedded), len(onDisk))
	}
}

func TestValidateFSRejectsBrokenAnnotations(t *testing.T) {
	cases := map[string]string{
		"missing down":   "-- +goose Up\nSELECT 1;\n",
		"down before up": "-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n",
		"unterminated":   "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
		"stray end":      "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\n",
	}
	for name, body := range cases {
		fsys := fstest.MapFS{
			"20260101000000_broken.sql": &fstest.MapFile{Data: []byte(body)},
		}
		if err := migrate.ValidateFS(fsys); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateFSRejectsDuplicateVersions(t *testing.T) {
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	fsys := fstest.MapFS{
		"20260101000000_a.sql": &fstest.MapFile{Data: body},
		"20260101000000_b.sql": &fstest.MapFile{Data: body},
	}
	if err := migrate.ValidateFS(fsys); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := migrate.ParseVersion("20260301120100"); err != nil || v != 20260301120100 {
		t.Fatalf("unexpected parse result %d, %v", v, err)
	}
	for _, bad := range []string{"", "2026", "2026030112010x"} {
		if _, err := migrate.ParseVersion(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestItemsMigrationGuardsQuantities(t *testing.T) {
	content := readMigration(t, "*_create_items_and_listings.sql")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS items",
		"CHECK (available_quantity >= 0 AND available_quantity <= total_quantity)",
		"FOREIGN KEY (listing_id) REFERENCES listings(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS items",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOffersMigrationConstraints(t *testing.T) {
	content := readMigration(t, "*_create_offers_and_pickups.sql")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS offers",
		"CREATE TABLE IF NOT EXISTS offer_reservations",
		"CONSTRAINT ux_bids_listing_sequence UNIQUE (listing_id, sequence)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_pickups_active_offer",
		"DROP TABLE IF EXISTS offers",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Bid Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_bid_index.sql") {
		t.Fatalf("unexpected filename %q", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration must validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected error for name without usable characters")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
