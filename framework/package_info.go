// Package framework contains the generic check-execution engine of the test harness. It
// knows nothing about HTTP; the domain-specific checks live in a separate package.
//
// The general model is:
//
// 1. A check is a named function with a timeout and a criticality flag (CheckDefinition).
// The Runner executes the registered checks one at a time, in registration order.
//
// 2. Each check runs under the bounded executor (Execute): its body runs on its own
// goroutine and the Runner stops waiting for it when the timeout elapses. A check that
// overruns is recorded as a failure and its goroutine is abandoned, not killed.
//
// 3. Checks that need to put the target under concurrent load use Probe, which fans out a
// number of identical operations over a bounded pool of workers and reduces the outcomes
// to a ProbeAggregate. The check itself decides what aggregate counts as a pass.
//
// 4. Every Result is folded into an Aggregator, which applies the failure policy (any
// critical failure, or too many failures overall, fails the run), and is passed to a
// Reporter.
package framework
