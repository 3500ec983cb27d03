// Command lakeingest stages API extracts in an object-store data lake and
// rebuilds curated Parquet partitions from them.
//
// Architecture overview:
//   - Ingest: for each configured source, internal/checkpoint resolves the
//     updated_since watermark (a relative lookback window, or a persisted
//     watermark in the object store, Postgres or memory), internal/fetcher/rest
//     performs the GET with exponential backoff, and internal/staging writes
//     the decoded body as one immutable raw object per fetch.
//   - Transform: internal/staging lists and flattens every raw object for a
//     source, internal/normalize applies the per-source rule and declared
//     schema, and internal/columnar writes one Parquet object that replaces
//     the previous partition. A Pub/Sub notice is published per partition when
//     a topic is configured.
//   - Plumbing: viper config with LAKE_ env overrides and the legacy variable
//     names, zap logging, Prometheus metrics served with /healthz and /readyz
//     by internal/api while a command runs.
//
// Sources run one after another by default. run.parallelism bounds
// concurrency and run.failure_policy chooses between stopping at the first
// failed source and reporting every failure at the end.
package main

import "github.com/JakeFAU/lakeingest/cmd"

func main() {
	cmd.Execute()
}
