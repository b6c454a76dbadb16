package domain

import "errors"

// ErrNotFound distinguishes absence of a stored entity from infrastructure
// failure. Resolvers turn it into a 404; everything else is fatal.
var ErrNotFound = errors.New("entity not found")
