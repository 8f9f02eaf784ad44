// Package collector implements the polling core: an XML-RPC client per
// agent and a worker-pool scheduler that fetches metric reports on a fixed
// cadence and emits results on a channel.
//
// The scheduler reads its target list from a TargetSource on every tick, so
// agents added or removed at runtime are picked up without a restart. Poll
// failures are data, not control flow: they are reported as Results with a
// non-nil Err and never stop the loop.
package collector
