// Package runstore keeps pipeline run history in a SQLite database under the
// configured data directory. Schema changes ship as embedded migrations.
//
// The store plugs into the orchestrator through Observer, so every stage
// transition is persisted as it happens. FailInterrupted is called at server
// start to close out runs orphaned by a previous process.
package runstore
