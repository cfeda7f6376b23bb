// Package scheduler runs simulation participants in synchronous rounds.
//
// Every active participant steps exactly once per round and the round ends
// with a full barrier, so no participant starts round n+1 before all of them
// finished round n. Within a round participants run in parallel on a bounded
// worker pool (errgroup with SetLimit), or inline on the caller's goroutine
// when the scheduler is configured as sequential. The environment is polled
// for shutdown between rounds only.
//
// Participants that are no longer active are pruned before a round starts.
// A failing or panicking participant is logged and counted in the round's
// Report; it never aborts the round or the loop.
package scheduler
