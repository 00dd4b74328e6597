package reference

import (
	"github.com/google/uuid"
)

// Generator hands out collection references. Implementations must not repeat.
type Generator interface {
	Next() string
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func() string

func (f GeneratorFunc) Next() string {
	return f()
}

// UUIDGenerator issues random (v4) UUID references, the format the gateway
// accepts for its reference field.
type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (UUIDGenerator) Next() string {
	return uuid.NewString()
}

// Valid reports whether ref parses as a UUID.
func Valid(ref string) bool {
	_, err := uuid.Parse(ref)
	return err == nil
}
