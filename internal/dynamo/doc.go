// Package dynamo provides the shared primitives of the railsim engine.
//
//   - [State]: flattened state vector
//   - [Window]: a component's index range inside the state vector
//   - [ConfigurationError], [DomainError], [StepperError]: the error taxonomy
//   - [Code]: the integer status reported per solve
//   - [Fork]: join-before-combine fork helper for subtree evaluation
//
// # Error propagation
//
// Errors flow strictly upward. No component retries or substitutes a value:
// a DomainError aborts the evaluation, which aborts the solve, which aborts
// the remaining sweep.
//
//	if err := runner.Solve(...); err != nil {
//	    code := dynamo.CodeOf(err)
//	}
package dynamo
