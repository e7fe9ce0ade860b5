// package tasks implements sync job execution between music providers.
//
// The Executor walks a user's sync profile, moves playlist content and likes
// between the mapped providers, and records the outcome as a SyncJob plus
// SyncRun pair. Operations emit progress updates via channels for
// non-blocking status reporting to CLI/UI layers.
package tasks
