package reconcile

import "errors"

// ErrReconciliation marks a failed startup sweep. It is fatal: live events
// must not be served against remote state that was not reset.
var ErrReconciliation = errors.New("reconciliation failed")
