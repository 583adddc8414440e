// Package testutil runs pipelines end to end through the App for the
// integration suites and provides small test-only operator modules.
package testutil
