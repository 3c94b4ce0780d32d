/**
 * Operand Parsing.
 *
 * Parses a rule condition's YAML operand once at load time into a
 * tagged variant, so evaluation is type-directed and branch-free on
 * operator x operand pair rather than re-parsing strings per packet.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kleaSCM/sentryd/internal/errkind"
	"github.com/kleaSCM/sentryd/internal/models"
)

var rangePattern = regexp.MustCompile(`^\d+-\d+$`)

// parseOperand turns a raw YAML operand (already decoded to a Go
// interface{} by yaml.v3: string, int, float64, or []interface{}) into
// an models.Operand for the given operator.
func parseOperand(op models.Operator, raw interface{}) (models.Operand, error) {
	switch v := raw.(type) {
	case int:
		return models.Operand{Kind: models.OperandInt, Int: int64(v)}, nil
	case int64:
		return models.Operand{Kind: models.OperandInt, Int: v}, nil
	case float64:
		if v == float64(int64(v)) {
			return models.Operand{Kind: models.OperandInt, Int: int64(v)}, nil
		}
		return models.Operand{Kind: models.OperandFloat, Float: v}, nil
	case string:
		return parseStringOperand(op, v)
	case []interface{}:
		return parseListOperand(v)
	default:
		return models.Operand{}, errkind.Wrap(errkind.Config, "parse_operand",
			fmt.Errorf("unsupported operand type %T", raw))
	}
}

func parseStringOperand(op models.Operator, v string) (models.Operand, error) {
	// Hex literal paired with ==.
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		n, err := strconv.ParseInt(v[2:], 16, 64)
		if err != nil {
			return models.Operand{}, errkind.Wrap(errkind.Config, "parse_hex", err)
		}
		return models.Operand{Kind: models.OperandHex, Int: n}, nil
	}

	// Inclusive integer range "A-B" for `in`.
	if op == models.OpIn && rangePattern.MatchString(v) {
		parts := strings.SplitN(v, "-", 2)
		a, errA := strconv.ParseInt(parts[0], 10, 64)
		b, errB := strconv.ParseInt(parts[1], 10, 64)
		if errA != nil || errB != nil {
			return models.Operand{}, errkind.Wrap(errkind.Config, "parse_range",
				fmt.Errorf("invalid range literal %q", v))
		}
		return models.Operand{Kind: models.OperandIntRange, RangeA: a, RangeB: b}, nil
	}

	return models.Operand{Kind: models.OperandStr, Str: v}, nil
}

func parseListOperand(items []interface{}) (models.Operand, error) {
	intSet := make(map[int64]bool, len(items))
	strSet := make(map[string]bool, len(items))
	allInts := true

	for _, item := range items {
		switch n := item.(type) {
		case int:
			intSet[int64(n)] = true
		case int64:
			intSet[n] = true
		case float64:
			intSet[int64(n)] = true
		case string:
			allInts = false
			strSet[n] = true
		default:
			return models.Operand{}, errkind.Wrap(errkind.Config, "parse_list",
				fmt.Errorf("unsupported list element type %T", item))
		}
	}

	if allInts {
		return models.Operand{Kind: models.OperandIntSet, IntSet: intSet}, nil
	}
	// Mixed or all-string lists both resolve against the string
	// representation of the feature value.
	merged := make(map[string]bool, len(strSet)+len(intSet))
	for k := range strSet {
		merged[k] = true
	}
	for k := range intSet {
		merged[strconv.FormatInt(k, 10)] = true
	}
	return models.Operand{Kind: models.OperandStrSet, StrSet: merged}, nil
}
