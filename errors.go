package fibre

import "errors"

// ErrUnsupportedArgSize is returned from Submit (via create) when an
// argument field's packed width is not one of {1,2,4,8} bytes, or when more
// than maxArgs arguments are given. Per spec.md §7,
// everything else the runtime can hit internally (allocation failure,
// invariant violation, signal install failure) is fatal and aborts the
// process via the runtime's logger instead of returning an error.
var ErrUnsupportedArgSize = errors.New("fibre: unsupported argument size or count")

// ErrShutdown is returned by Submit once Shutdown has been called on the
// Runtime (checked against Runtime.stopping).
var ErrShutdown = errors.New("fibre: runtime is shutting down")
