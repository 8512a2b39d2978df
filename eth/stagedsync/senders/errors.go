package senders

import "errors"

// ErrInvalidTransaction is the sentinel a worker wraps around any
// malformed signature or out-of-range curve parameter. The farm
// recognizes it to decide whether to initiate shutdown (§4.E's failure
// modes: "a malformed signature or out-of-range curve parameter ⇒
// invalid_transaction propagated from the worker to the farm").
var ErrInvalidTransaction = errors.New("senders: invalid transaction signature")
