package qhybrid

import "fmt"

/*
ArgumentError reports an invalid argument at a construction or call boundary:
qubit or layer counts out of range, a parameter vector of the wrong length,
empty encoder input, or an invalid configuration value. It is never recovered
internally.
*/
type ArgumentError struct {
	Op     string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument: %s", e.Op, e.Reason)
}

func argumentError(op, format string, args ...any) error {
	return &ArgumentError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

/*
DimensionMismatchError reports a shape mismatch between pipeline stages, for
example a preprocessor whose output width is not 2^nqubits.
*/
type DimensionMismatchError struct {
	Stage string
	Want  int
	Got   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch: want %d, got %d", e.Stage, e.Want, e.Got)
}

/*
InvalidGateError reports a gate whose qubit indices do not fit the register
it is applied to. Seeing one means a circuit was built wrong.
*/
type InvalidGateError struct {
	Gate    GateSpec
	NQubits int
	Reason  string
}

func (e *InvalidGateError) Error() string {
	return fmt.Sprintf("invalid gate %s on %d qubits: %s", e.Gate, e.NQubits, e.Reason)
}
