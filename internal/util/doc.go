// Package util provides small helpers shared across the relay packages.
//
// Key utilities:
//   - SafeTruncate: truncates strings for log output
//   - LogState: renders a correlation token in a log-safe, shortened form
//   - SplitList: parses comma-separated configuration values
package util
