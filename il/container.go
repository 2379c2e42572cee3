package il

import "github.com/pkg/errors"

// Range is a half-open range [Start, End) of statement-storage positions,
// as returned by Container.Push accumulations and consumed by
// Container.IterStatements.
type Range struct {
	Start int
	End   int
}

// Len returns the number of statements covered by r.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Container is the concrete, append-only IL statement store (spec §6):
// Push appends a statement and returns the number of storage units it
// consumed (always 1, for this flat implementation — variable-width
// encodings are free to return otherwise), Len returns the total number of
// units stored, and IterStatements yields the statements in a previously
// recorded range.
type Container struct {
	statements []Statement
}

// NewContainer returns an empty IL container.
func NewContainer() *Container {
	return &Container{}
}

// Push appends statement to the container and returns the number of
// storage units consumed.
func (c *Container) Push(statement Statement) (int, error) {
	c.statements = append(c.statements, statement)
	return 1, nil
}

// Len returns the total number of storage units held by the container.
func (c *Container) Len() int {
	return len(c.statements)
}

// IterStatements returns the statements in the half-open range r. r must
// have been produced by accumulating the return values of Push calls made
// against this container (or a predecessor it was rebuilt from).
func (c *Container) IterStatements(r Range) ([]Statement, error) {
	if r.Start < 0 || r.End > len(c.statements) || r.Start > r.End {
		return nil, errors.Errorf("statement range %v out of bounds of container of length %d", r, len(c.statements))
	}
	return c.statements[r.Start:r.End], nil
}

// StatementPushError reports that the container rejected a statement (spec
// §7's StatementPushFailure). The flat Container never rejects a push, but
// the error type is exported so alternative Container implementations
// (e.g. a bounded or deduplicating store) can surface one through the same
// contract.
type StatementPushError struct {
	Reason string
}

func (e *StatementPushError) Error() string {
	return "statement push failure: " + e.Reason
}
