// Package output formats review verdicts for display or machine consumption.
//
// Five formats are supported:
//   - text: the conversation transcript followed by the findings (default)
//   - json: the full verdict, transcript included
//   - markdown: a PR comment with collapsible sections per severity
//   - yaml: the full verdict, with the same field names as json
//   - sarif: SARIF v2.1.0 findings for GitHub code scanning and other CI tools
//
// Use [GetWriter] to obtain a [Writer] for a format string, or
// [WriteVerdict] to write to a file or stdout in one call. [WriteAll] writes
// a batch: json becomes an array, yaml a multi-document stream and sarif one
// log with a run per verdict; text and markdown are concatenated.
package output
