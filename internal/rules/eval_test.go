/**
 * Condition Evaluation Tests.
 *
 * Table-driven property tests over the documented operator x operand
 * space, following the pack's testify-table convention
 * rather than a dedicated property-testing library (no pack example
 * imports one — see DESIGN.md).
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/sentryd/internal/models"
)

func TestEvalCondition(t *testing.T) {
	cases := []struct {
		name string
		cond models.Condition
		fm   models.FeatureMap
		want bool
	}{
		{
			name: "missing feature is false, never wildcard",
			cond: models.Condition{Feature: "ip_ttl", Operator: models.OpLt, Operand: models.Operand{Kind: models.OperandInt, Int: 10}},
			fm:   models.FeatureMap{},
			want: false,
		},
		{
			name: "numeric greater-than true",
			cond: models.Condition{Feature: "ip_len", Operator: models.OpGt, Operand: models.Operand{Kind: models.OperandInt, Int: 1500}},
			fm:   models.FeatureMap{models.FeatureIPLen: models.IntValue(1600)},
			want: true,
		},
		{
			name: "numeric greater-than false at boundary",
			cond: models.Condition{Feature: "ip_len", Operator: models.OpGt, Operand: models.Operand{Kind: models.OperandInt, Int: 1500}},
			fm:   models.FeatureMap{models.FeatureIPLen: models.IntValue(1500)},
			want: false,
		},
		{
			name: "hex equality on tcp_flags",
			cond: models.Condition{Feature: "tcp_flags", Operator: models.OpEq, Operand: models.Operand{Kind: models.OperandHex, Int: 0x02}},
			fm:   models.FeatureMap{models.FeatureTCPFlags: models.IntValue(0x02)},
			want: true,
		},
		{
			name: "in inclusive range membership",
			cond: models.Condition{Feature: "tcp_dport", Operator: models.OpIn, Operand: models.Operand{Kind: models.OperandIntRange, RangeA: 1, RangeB: 1023}},
			fm:   models.FeatureMap{models.FeatureTCPDport: models.IntValue(80)},
			want: true,
		},
		{
			name: "in range rejects A > B",
			cond: models.Condition{Feature: "tcp_dport", Operator: models.OpIn, Operand: models.Operand{Kind: models.OperandIntRange, RangeA: 1023, RangeB: 1}},
			fm:   models.FeatureMap{models.FeatureTCPDport: models.IntValue(80)},
			want: false,
		},
		{
			name: "in int set membership",
			cond: models.Condition{Feature: "tcp_dport", Operator: models.OpIn, Operand: models.Operand{Kind: models.OperandIntSet, IntSet: map[int64]bool{22: true, 23: true, 3389: true}}},
			fm:   models.FeatureMap{models.FeatureTCPDport: models.IntValue(22)},
			want: true,
		},
		{
			name: "type mismatch on ordered compare is false",
			cond: models.Condition{Feature: "ip_len", Operator: models.OpGt, Operand: models.Operand{Kind: models.OperandStr, Str: "big"}},
			fm:   models.FeatureMap{models.FeatureIPLen: models.IntValue(1600)},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, evalCondition(tc.cond, tc.fm))
		})
	}
}

func TestEvalAgainstString(t *testing.T) {
	require.True(t, EvalAgainstString(models.OpEq, models.Operand{Kind: models.OperandStr, Str: "10.0.0.1"}, "10.0.0.1"))
	require.True(t, EvalAgainstString(models.OpIn, models.Operand{Kind: models.OperandIntSet, IntSet: map[int64]bool{22: true}}, "22"))
	require.False(t, EvalAgainstString(models.OpIn, models.Operand{Kind: models.OperandIntSet, IntSet: map[int64]bool{22: true}}, "23"))
}
