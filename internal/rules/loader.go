/**
 * Rule File Loader.
 *
 * Parses YAML rule files into models.Rule, validates feature
 * names against the closed FeatureKey enum, and resolves each rule's
 * packet/flow Domain. Custom rules added at runtime are persisted back
 * to disk with gopkg.in/yaml.v3 so they survive a restart.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kleaSCM/sentryd/internal/errkind"
	"github.com/kleaSCM/sentryd/internal/models"
)

// CustomRulesFile is the well-known file authoritative for dynamic
// edits.
const CustomRulesFile = "custom_rules.yaml"

// yamlDoc mirrors the on-disk schema: `rules: [{name, conditions,
// severity, enabled?}, ...]`.
type yamlDoc struct {
	Rules []yamlRule `yaml:"rules"`
}

type yamlRule struct {
	Name       string          `yaml:"name"`
	Conditions [][]interface{} `yaml:"conditions"`
	Severity   string          `yaml:"severity"`
	Enabled    *bool           `yaml:"enabled"`
}

// validFeatureNames is the closed set of rule-condition feature names
//; the YAML parser rejects anything outside it.
var validFeatureNames = buildValidFeatureNames()

func buildValidFeatureNames() map[string]bool {
	names := map[string]bool{}
	for k := range models.PerPacketKeys {
		names[string(k)] = true
	}
	for k := range models.FlowKeys {
		names[string(k)] = true
	}
	return names
}

// parseFile reads and parses one YAML rule file, tagging the resulting
// rules as custom iff custom is true.
func parseFile(path string, custom bool) ([]models.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Config, "read_rule_file", err)
	}

	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errkind.Wrap(errkind.Config, "unmarshal_rule_file", err)
	}

	rules := make([]models.Rule, 0, len(doc.Rules))
	for _, yr := range doc.Rules {
		rule, err := buildRule(yr)
		if err != nil {
			return nil, errkind.Wrap(errkind.Config, fmt.Sprintf("rule %q in %s", yr.Name, path), err)
		}
		rule.Custom = custom
		rules = append(rules, rule)
	}
	return rules, nil
}

func buildRule(yr yamlRule) (models.Rule, error) {
	if yr.Name == "" {
		return models.Rule{}, fmt.Errorf("rule missing name")
	}

	conditions := make([]models.Condition, 0, len(yr.Conditions))
	hasPacket, hasFlow := false, false

	for _, c := range yr.Conditions {
		if len(c) != 3 {
			return models.Rule{}, fmt.Errorf("condition must have exactly 3 elements, got %d", len(c))
		}
		feature, ok := c[0].(string)
		if !ok {
			return models.Rule{}, fmt.Errorf("condition feature must be a string")
		}
		if !validFeatureNames[feature] {
			return models.Rule{}, fmt.Errorf("unknown feature %q", feature)
		}
		operator, ok := c[1].(string)
		if !ok {
			return models.Rule{}, fmt.Errorf("condition operator must be a string")
		}
		operand, err := parseOperand(models.Operator(operator), c[2])
		if err != nil {
			return models.Rule{}, err
		}

		conditions = append(conditions, models.Condition{
			Feature:  feature,
			Operator: models.Operator(operator),
			Operand:  operand,
		})

		if models.PerPacketKeys[models.FeatureKey(feature)] {
			hasPacket = true
		}
		if models.FlowKeys[models.FeatureKey(feature)] {
			hasFlow = true
		}
	}

	// Domain classifies which feature namespace the rule draws from;
	// rules mixing both (e.g. "Port Scan Detection", which pairs
	// tcp_dport with packet_count/duration) are DomainEither and fire
	// against the pipeline's merged per-packet+flow map.
	domain := models.DomainEither
	switch {
	case hasPacket && hasFlow:
		domain = models.DomainEither
	case hasPacket:
		domain = models.DomainPacket
	case hasFlow:
		domain = models.DomainFlow
	}

	enabled := true
	if yr.Enabled != nil {
		enabled = *yr.Enabled
	}
	severity := models.Severity(yr.Severity)
	if severity == "" {
		severity = models.SeverityMedium
	}

	return models.Rule{
		Name:       yr.Name,
		Conditions: conditions,
		Severity:   severity,
		Enabled:    enabled,
		Domain:     domain,
	}, nil
}

// loadDir reads every *.yaml file in dir except CustomRulesFile as
// built-in, then custom_rules.yaml last so its rules can be detected as
// overrides by the caller. Returns (builtins, custom, error).
func loadDir(dir string) ([]models.Rule, []models.Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Config, "read_rules_dir", err)
	}

	var builtins, custom []models.Rule
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		isCustom := e.Name() == CustomRulesFile
		rules, err := parseFile(path, isCustom)
		if err != nil {
			return nil, nil, err
		}
		if isCustom {
			custom = append(custom, rules...)
		} else {
			builtins = append(builtins, rules...)
		}
	}
	return builtins, custom, nil
}

// writeCustomRule upserts rule into the custom rules file by name,
// preserving all other custom rules.
func writeCustomRule(dir string, rule models.Rule) error {
	path := filepath.Join(dir, CustomRulesFile)

	doc := yamlDoc{}
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &doc)
	}

	found := false
	for i, yr := range doc.Rules {
		if yr.Name == rule.Name {
			doc.Rules[i] = toYAMLRule(rule)
			found = true
			break
		}
	}
	if !found {
		doc.Rules = append(doc.Rules, toYAMLRule(rule))
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return errkind.Wrap(errkind.Sink, "marshal_custom_rules", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errkind.Wrap(errkind.Sink, "write_custom_rules", err)
	}
	return nil
}

// removeCustomRule deletes rule name from the custom rules file, if
// present. Absence of the file or the name is not an error.
func removeCustomRule(dir, name string) error {
	path := filepath.Join(dir, CustomRulesFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errkind.Wrap(errkind.Config, "unmarshal_custom_rules", err)
	}

	kept := make([]yamlRule, 0, len(doc.Rules))
	for _, yr := range doc.Rules {
		if yr.Name != name {
			kept = append(kept, yr)
		}
	}
	doc.Rules = kept

	out, err := yaml.Marshal(doc)
	if err != nil {
		return errkind.Wrap(errkind.Sink, "marshal_custom_rules", err)
	}
	return os.WriteFile(path, out, 0o644)
}

func toYAMLRule(rule models.Rule) yamlRule {
	conditions := make([][]interface{}, 0, len(rule.Conditions))
	for _, c := range rule.Conditions {
		conditions = append(conditions, []interface{}{c.Feature, string(c.Operator), operandToRaw(c.Operand)})
	}
	enabled := rule.Enabled
	return yamlRule{
		Name:       rule.Name,
		Conditions: conditions,
		Severity:   string(rule.Severity),
		Enabled:    &enabled,
	}
}

// OperandToRaw exposes operandToRaw for the HTTP control surface's
// rule-to-DTO conversion.
func OperandToRaw(o models.Operand) interface{} { return operandToRaw(o) }

// ParseOperand exposes parseOperand for the HTTP control surface's
// DTO-to-rule conversion.
func ParseOperand(op models.Operator, raw interface{}) (models.Operand, error) {
	return parseOperand(op, raw)
}

func operandToRaw(o models.Operand) interface{} {
	switch o.Kind {
	case models.OperandInt:
		return o.Int
	case models.OperandFloat:
		return o.Float
	case models.OperandStr:
		return o.Str
	case models.OperandHex:
		return fmt.Sprintf("0x%X", o.Int)
	case models.OperandIntRange:
		return fmt.Sprintf("%d-%d", o.RangeA, o.RangeB)
	case models.OperandIntSet:
		out := make([]interface{}, 0, len(o.IntSet))
		for v := range o.IntSet {
			out = append(out, v)
		}
		return out
	case models.OperandStrSet:
		out := make([]interface{}, 0, len(o.StrSet))
		for v := range o.StrSet {
			out = append(out, v)
		}
		return out
	default:
		return nil
	}
}
