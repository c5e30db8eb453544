// Package engine assembles a crew from configuration and runs it. It owns the
// provider registry agents are built from, the usage ledger intercepting
// providers record into, and the task and run callbacks observers hook into.
package engine
