package reconciletest

import "errors"

var errNotFound = errors.New("not found")
