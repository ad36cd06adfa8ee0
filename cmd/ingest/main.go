// Command ingest uploads InsightCM waveform recordings and trend bundles to
// the catalog.
//
//	ingest waveforms --path ./recordings
//	ingest trends --path ./bundles/pump1.zip --save-files
package main

import "os"

func main() {
	os.Exit(int(Run(os.Args[1:], os.Stdout, os.Stderr)))
}
