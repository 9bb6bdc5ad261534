// Package storage persists the URLs found by successful jobs.
//
// Drivers:
//   - "file": one plain-text file per job under a directory named after the
//     shortener domain, one URL per line
//   - "sqlite": a single database with one row per (job, url)
package storage
