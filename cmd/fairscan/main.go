// Package main provides the entry point for the fairscan CLI.
//
// Fairscan is a fairness auditing tool for tabular machine learning
// models. It trains a model on a CSV dataset via a local analysis
// server, measures how much each protected column influences the
// model's decisions, and reports discriminatory patterns.
//
// Usage:
//
//	fairscan audit <dataset.csv> --label <column> --protected <column>
//	fairscan columns <dataset.csv>
//	fairscan history
//
// See --help for all available options.
package main

// main is the entry point for fairscan.
func main() {
	Execute()
}
