// Package classify decides whether a registry entity is an in-scope carrier.
package classify

import (
	"strings"
)

// Rule codes identify which step of the decision produced the result.
const (
	RuleNoEntityType   = "no_entity_type"
	RuleCompoundFirst  = "compound_first_segment"
	RuleExcludedType   = "excluded_type"
	RuleIncludedType   = "included_keyword"
	RuleOperationMatch = "operation_signal"
	RuleDefault        = "default_include"
)

// excludedTypes are exact entity types that are never carriers.
var excludedTypes = map[string]bool{
	"broker":                 true,
	"freight forwarder":      true,
	"property broker":        true,
	"household goods broker": true,
	"passenger broker":       true,
}

// includedKeywords mark an entity type as a carrier when found anywhere in it.
var includedKeywords = []string{
	"carrier", "motor", "truck", "transport", "logistics", "freight", "hauling",
	"delivery", "corporation", "llc", "inc", "company", "enterprises",
}

// carrierOperations are operation values that only carriers declare.
var carrierOperations = map[string]bool{
	"interstate":               true,
	"intrastate only (hm)":     true,
	"intrastate only (non-hm)": true,
	"intrastate":               true,
	"auth. for hire":           true,
	"authorized for hire":      true,
	"exempt for hire":          true,
	"private(property)":        true,
	"private property":         true,
	"migrant":                  true,
	"u.s. mail":                true,
}

// Result is a classification and the rule that decided it.
type Result struct {
	IsCarrier bool   `json:"is_carrier"`
	Rule      string `json:"rule"`
}

// Classify applies the carrier decision order. It is a pure, total function.
// A nil entityType means the type was not extracted.
func Classify(entityType *string, operationClassification, carrierOperation []string) Result {
	if entityType == nil || normalize(*entityType) == "" {
		return Result{IsCarrier: true, Rule: RuleNoEntityType}
	}
	t := normalize(*entityType)

	if i := strings.Index(t, "/"); i >= 0 {
		first := strings.TrimSpace(t[:i])
		switch first {
		case "carrier":
			return Result{IsCarrier: true, Rule: RuleCompoundFirst}
		case "broker":
			return Result{IsCarrier: false, Rule: RuleCompoundFirst}
		}
		// Other compounds (e.g. "SHIPPER/BROKER") are judged by their first role.
		t = first
	}

	if excludedTypes[t] {
		return Result{IsCarrier: false, Rule: RuleExcludedType}
	}

	for _, kw := range includedKeywords {
		if strings.Contains(t, kw) {
			return Result{IsCarrier: true, Rule: RuleIncludedType}
		}
	}

	if firstIsOperation(operationClassification) || firstIsOperation(carrierOperation) {
		return Result{IsCarrier: true, Rule: RuleOperationMatch}
	}

	return Result{IsCarrier: true, Rule: RuleDefault}
}

// IsCarrierEntity is Classify reduced to its boolean.
func IsCarrierEntity(entityType *string, operationClassification, carrierOperation []string) bool {
	return Classify(entityType, operationClassification, carrierOperation).IsCarrier
}

func firstIsOperation(values []string) bool {
	if len(values) == 0 {
		return false
	}
	return carrierOperations[strings.ToLower(strings.Join(strings.Fields(values[0]), " "))]
}

// normalize lowercases, maps hyphens to spaces and squeezes whitespace.
func normalize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "-", " "))
	return strings.Join(strings.Fields(s), " ")
}
