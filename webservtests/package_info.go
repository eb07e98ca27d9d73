// Package webservtests contains the battery of checks that are run against an HTTP server.
//
// Each check is written as a function that receives a *T. T behaves enough like Go's
// testing.T that the assert and require packages can be used with it, and it also provides
// helpers for sending ordinary and raw requests to the server under test. Checks are grouped
// the same way they are reported, and AllChecks converts them into framework.CheckDefinitions
// so the framework runner can execute them.
package webservtests
