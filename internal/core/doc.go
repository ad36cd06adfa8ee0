// Package core provides the ingestion logic for condition-monitoring exports.
//
// The package is independent of any input encoding or catalog transport.
// Format readers live in the readers subpackage and register themselves at
// init time; catalog backends implement [Catalog].
//
// # Pipeline
//
// Every artifact flows through four stages:
//
//  1. A [FormatReader] yields one [RawChannelDescriptor] per usable channel.
//  2. [Map] turns a descriptor into a canonical time series or sequence
//     record. Descriptors that do not qualify are rejected with a
//     [MappingRejection].
//  3. A [Reconciler] finds or creates the catalog entities for the record,
//     resolving assets through a per-run cache.
//  4. A [Submitter] pushes datapoints in batches or sequence rows in one call.
//
// [Pipeline.Run] drives the stages for a list of artifacts and reports one
// [ArtifactOutcome] per artifact. Failures are isolated at the channel level
// and then at the artifact level.
//
// # Format Registry
//
// Readers are registered using [Register]:
//
//	core.Register(core.FormatDefinition{
//	    Info: core.FormatInfo{Key: "tdms", Label: "NI TDMS waveform", Extension: ".tdms"},
//	    NewReader: func(opts core.ReaderOptions) core.FormatReader {
//	        return NewTDMSReader()
//	    },
//	})
//
// # Error Handling
//
// Failures are typed by [FailureKind] and carry a code for support reference:
//
//   - PARSE001-PARSE002: artifact could not be read
//   - MAP001-MAP004: channel does not qualify for ingestion
//   - REC001-REC002: catalog lookup or creation failed
//   - SUB001-SUB002: datapoints or rows could not be submitted
//
// [Describe] maps any error to a user-facing message.
package core
