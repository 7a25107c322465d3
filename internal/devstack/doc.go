// Package devstack runs the local development stack: the workbench service,
// a frontend, and the example agent, each as a child process.
//
// Processes start in configuration order. A process marked wait_ready holds
// back everything after it until the readiness probe (normally the
// service's gRPC health check) passes. Each process's stdout and stderr are
// prefixed with its colored name on a shared output.
//
// The whole stack stops together: on context cancellation, when a required
// process exits, or when a readiness wait times out. Each process group gets
// SIGINT and is killed if it is still running after the grace period.
package devstack
