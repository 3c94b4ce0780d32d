/**
 * Rule Model.
 *
 * Defines a conjunctive predicate rule over a FeatureMap: a rule fires
 * iff every condition holds and the rule is enabled.
 * Operand parsing follows a tagged-variant design so evaluation is
 * type-directed rather than re-parsing strings per call.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package models

// Severity is the ordered alert severity scale used throughout the
// pipeline.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Operator is the comparison applied between a feature value and a
// condition's operand.
type Operator string

const (
	OpEq Operator = "=="
	OpNe Operator = "!="
	OpGt Operator = ">"
	OpLt Operator = "<"
	OpGe Operator = ">="
	OpLe Operator = "<="
	OpIn Operator = "in"
)

// OperandKind tags which field of Operand is meaningful.
type OperandKind int

const (
	OperandInt OperandKind = iota
	OperandFloat
	OperandStr
	OperandIntRange
	OperandIntSet
	OperandHex
	OperandStrSet
)

// Operand is the tagged-variant operand value parsed once at rule-load
// time.
type Operand struct {
	Kind   OperandKind
	Int    int64
	Float  float64
	Str    string
	RangeA int64
	RangeB int64
	IntSet map[int64]bool
	StrSet map[string]bool
}

// Condition is a single (feature, operator, operand) triple.
// Feature is a plain string rather than FeatureKey because the same
// Condition shape is reused by correlation rules to select over
// Alert fields, which are not members of the packet/flow FeatureKey
// enum. The rule engine restricts Feature to FeatureKey values at load
// time (unknown names are a ConfigError); the correlator restricts it
// to the Alert.Field vocabulary.
type Condition struct {
	Feature  string
	Operator Operator
	Operand  Operand
}

// Domain classifies whether a rule's conditions reference per-packet
// features, flow features, or both — resolved at load time.
type Domain int

const (
	DomainPacket Domain = iota
	DomainFlow
	DomainEither
)

// Rule is identified by a unique name. Conditions are ANDed;
// Enabled toggles participation in evaluation without losing the rule
// definition.
type Rule struct {
	Name       string
	Conditions []Condition
	Severity   Severity
	Enabled    bool
	Domain     Domain
	// Custom marks a rule as originating from custom_rules.yaml, which
	// takes precedence over a built-in rule of the same name on reload.
	Custom bool
}
