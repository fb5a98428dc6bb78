// Package supervisor runs compiled bundles in isolated worker processes.
//
// A Supervisor owns a single Slot. At most one worker lives in the slot;
// replacing it asks the previous worker to terminate and does not wait for
// that worker to exit before starting the next one.
package supervisor
