// Package dispatch implements the campaign dispatch core: a tick-driven
// scheduler that discovers due campaigns per tenant and works them one
// recipient at a time, honoring pacing, operating hours, suppression rules,
// and channel health.
//
// The package is organized around one pass per tenant per tick:
//
//	Scheduler      fixed-interval tick, at most one in-flight pass per tenant
//	Runner         campaign state machine and the per-recipient send loop
//	Allocator      deterministic channel x variant rotation
//	FilterChain    suppression lookup and capability probe before each send
//	Pacer          durable minimum inter-send gap, interruptible sleep
//	Executor       provider call, failure classification, counter updates
//	HealthMonitor  rate-limited connectivity sweep of each campaign's pool
//
// All durable state lives behind the store interfaces in interfaces.go; the
// only in-process state is the tenant in-flight marker and per-campaign
// health-probe timestamps, both safe to lose on restart.
package dispatch
