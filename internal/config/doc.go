// Package config provides configuration structures and utilities for fairscan.
// It defines the main options for audit runs, analysis-server launch settings,
// report generation preferences, and per-dataset audit profiles.
package config
