package tablo_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hupe1980/tablo"
)

// Example demonstrates indexing a CSV dataset and looking up a row by key.
func Example() {
	dir, err := os.MkdirTemp("", "tablo")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "users.csv")
	data := "id,name,status\n1,alice,active\n2,bob,deleted\n3,carol,active\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	t, err := tablo.Open(path,
		tablo.WithKeyColumns("id"),
		tablo.WithMatchColumn("status", "active", "deleted"),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer t.Close()

	if _, err := t.Rebuild(ctx); err != nil {
		log.Fatal(err)
	}

	row, found, err := t.Lookup(ctx, "3")
	if err != nil {
		log.Fatal(err)
	}
	if found {
		name, _ := row.Column("name")
		fmt.Println(name)
	}

	// Deleted users are excluded from the index.
	_, found, _ = t.Lookup(ctx, "2")
	fmt.Println(found)

	// Output:
	// carol
	// false
}

// Example_builder demonstrates the fluent builder with a persisted index.
func Example_builder() {
	dir, err := os.MkdirTemp("", "tablo")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "users.csv")
	data := "id,name,status\n1,alice,active\n2,bob,deleted\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		log.Fatal(err)
	}

	t, err := tablo.CSV(path).
		Key("id").
		Match("status", "active", "deleted").
		Artifact(path + ".tidx").
		Rebuild().
		Build()
	if err != nil {
		log.Fatal(err)
	}
	defer t.Close()

	// Persist the index so the next open skips the build pass.
	if err := t.SaveIndex(); err != nil {
		log.Fatal(err)
	}

	summary, _ := t.Summary()
	fmt.Println(summary.Keys)

	// Output:
	// 1
}

// Example_scan demonstrates iterating all include rows in dataset order.
func Example_scan() {
	dir, err := os.MkdirTemp("", "tablo")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "users.csv")
	data := "id,name,status\n1,alice,active\n2,bob,deleted\n3,carol,active\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		log.Fatal(err)
	}

	t, err := tablo.CSV(path).Key("id").Match("status", "active", "deleted").Rebuild().Build()
	if err != nil {
		log.Fatal(err)
	}
	defer t.Close()

	for row, err := range t.Scan(context.Background()) {
		if err != nil {
			log.Fatal(err)
		}
		name, _ := row.Column("name")
		fmt.Println(name)
	}

	// Output:
	// alice
	// carol
}
