// Package log provides privacy-aware logging with automatic masking of
// raw dataset values, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic masking of dataset sample values (rows, cells, previews)
//   - Configurable log levels with verbose mode support
//   - Consistent log formatting across the application
//   - Per-key exemptions for derived, non-identifying values
//
// # Privacy Features
//
// The RedactHandler automatically masks dataset content in log output:
//   - Attributes whose keys name raw data (sample, cell, row, preview)
//   - Values that look like delimited records, regardless of key name
//
// Audit datasets carry personal records and protected attributes, so
// sample values are masked even in verbose mode. Logs can then be
// attached to bug reports or shared without leaking user data.
//
// # Usage
//
//	// Create a privacy-aware logger
//	logger := log.NewRedactLogger(os.Stderr, true) // verbose=true
//
//	// Use as a standard slog.Logger
//	logger.Debug("column preview",
//	    "sample", "39,State-gov,Bachelors",  // Will be masked
//	    "dataset", "adult.csv",
//	)
//
//	// Set as default logger
//	slog.SetDefault(logger)
package log
