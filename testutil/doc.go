// Package testutil provides testing utilities for tablo.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating deterministic CSV datasets of
// arbitrary size and shape.
//
// # Dataset Generation
//
//	rng := testutil.NewRNG(seed)
//	data := testutil.GenerateCSV(rng, testutil.CSVSpec{
//	    Rows:    10_000,
//	    Columns: []string{"id", "name", "status"},
//	})
//
// The same seed always produces the same dataset, so build summaries and
// lookup results are reproducible across runs.
package testutil
