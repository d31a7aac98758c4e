// Package resource bounds how much work the service takes on. A Manager
// owns the single pool of execution slots shared by the task executor and
// the admission middleware, and refuses new work while host memory or CPU
// usage is above its configured ceilings.
package resource
