package database

import "errors"

// ErrNotReady signals that Connection was requested before the pool was
// established by Start.
var ErrNotReady = errors.New("database not ready")
