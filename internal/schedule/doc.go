// Package schedule owns the pending sign-up queue.
//
// A Scheduler keeps entries ordered by claim-window opening (ties in
// insertion order), writes the whole queue to its Store after every
// mutation, and runs a single dispatch loop that fires due entries through
// an Executor. Weekly entries are re-armed for the following week through a
// Resolver after they fire, whatever the claim outcome was.
//
// The loop sleeps until the earliest fire time, capped at MaxSleep so that
// wall-clock jumps and system suspend are noticed. Any mutation wakes it so
// an earlier insertion shortens the wait.
package schedule
