package panicerr

// Recover runs f in a new goroutine, recovering any abnormal exit or panic
// (including a VM halt triggered by a runtime/assert/panic error) as a
// non-nil error return instead of crashing the host process.
func Recover(name string, f func() error) error {
	errch := make(chan error, 1)
	go func() {
		defer close(errch)
		defer recoverExitError(name, errch)
		defer recoverPanicError(name, errch)
		errch <- f()
	}()
	return <-errch
}
