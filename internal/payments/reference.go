package payments

import "github.com/google/uuid"

// ReferenceGenerator produces the idempotency key of one purchase attempt.
type ReferenceGenerator interface {
	NewReference() string
}

// UUIDReferences issues random (version 4) UUIDs: 122 bits from crypto/rand.
type UUIDReferences struct{}

func (UUIDReferences) NewReference() string { return uuid.NewString() }

// ReferenceFunc adapts a plain function, handy for fixed references in tests.
type ReferenceFunc func() string

func (f ReferenceFunc) NewReference() string { return f() }
