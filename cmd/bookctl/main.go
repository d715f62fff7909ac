// Command bookctl is the operator CLI for the book search index: it ingests
// CSV exports, rebuilds the snapshot and runs queries against the persisted
// snapshot without a running server.
//
// Usage:
//
//	bookctl ingest --dir data
//	bookctl rebuild
//	bookctl search "space opera with robots" -k 5 --genre fiction
//	bookctl similar 9780553293357
//	bookctl stats
package main

func main() {
	Execute()
}
