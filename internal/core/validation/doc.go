// Package validation provides the pure rule engine used to vet charge and
// charge link operations before they touch a charge timeline.
//
// A rule is a small value that already knows the data it judges. Factories
// build the applicable RuleSet for an operation, and RuleSet.Validate turns
// the rules into an immutable Result. Nothing in this package performs I/O:
// the clock reading, the time zone and the persisted charge are passed in.
//
// # Stages
//
//   - InputRules: self-consistency of one operation, keyed by charge type only
//   - BusinessRules: rules that consult configuration and the existing charge
//   - LinkInputRules and LinkBusinessRules: the same two stages for charge links
//
// # Usage
//
//	result := validation.InputRules(op).Validate()
//	if !result.IsValid() {
//	    // Reject the operation with result.Errors()
//	}
package validation
