package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedRule struct {
	id    RuleIdentifier
	valid bool
}

func (r fixedRule) Identifier() RuleIdentifier    { return r.id }
func (r fixedRule) IsValid() bool                 { return r.valid }
func (r fixedRule) Parameters() map[string]string { return map[string]string{"Id": string(r.id)} }

func TestRuleSet_Validate_AllPass(t *testing.T) {
	set := NewRuleSet(fixedRule{"a", true}, fixedRule{"b", true})

	result := set.Validate()
	assert.True(t, result.IsValid())
	assert.Empty(t, result.Errors())
}

func TestRuleSet_Validate_CollectsEveryFailure(t *testing.T) {
	set := NewRuleSet(fixedRule{"a", false}, fixedRule{"b", true}, fixedRule{"c", false})

	result := set.Validate()
	assert.False(t, result.IsValid())

	errs := result.Errors()
	if assert.Len(t, errs, 2) {
		assert.Equal(t, RuleIdentifier("a"), errs[0].Rule)
		assert.Equal(t, RuleIdentifier("c"), errs[1].Rule)
		assert.Equal(t, "c", errs[1].Parameters["Id"])
	}
}

func TestRuleSet_IsImmutable(t *testing.T) {
	rules := []Rule{fixedRule{"a", true}}
	set := NewRuleSet(rules...)
	rules[0] = fixedRule{"b", false}

	assert.Equal(t, []RuleIdentifier{"a"}, set.Identifiers())
	assert.True(t, set.Validate().IsValid())
}

func TestResult_ZeroValueIsSuccess(t *testing.T) {
	var r Result
	assert.True(t, r.IsValid())
	assert.True(t, Success().IsValid())
	assert.False(t, Failure(ValidationError{Rule: "x"}).IsValid())
}
