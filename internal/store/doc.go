// Package store journals lowering runs in SQLite.
//
// A run is one invocation of the pass driver, keyed by its run id. It holds
// the mode, the kernel sources, the pass and IR versions, the module
// fingerprints before and after, and the applied, missed and illegal counts.
// Every remark the driver emits is a row in remarks keyed by (run_id, seq),
// so `gpuflat remarks` can replay a run's decisions in the order they were
// made.
//
// Store implements rewrite.RemarkSink. Record may run before WriteRun: the
// run row is created on first use and completed by WriteRun. Recording the
// same (run_id, seq) twice keeps the first row.
//
// Remarks are always read ORDER BY seq, never by wall time, and remark
// details are stored as canonical JSON so equal details give equal rows.
package store
