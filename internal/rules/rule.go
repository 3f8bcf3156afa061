// Package rules implements the heuristic detection rules and the engine that runs them.
package rules

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	// ErrNoRules is returned when a batch pass is requested with no rule set.
	ErrNoRules = errors.New("no rule set configured")

	// ErrUnknownRule is returned for an unrecognized rule identifier.
	ErrUnknownRule = errors.New("unknown rule")
)

// Kind identifies a detection rule. It is the reporting key for rule stats.
type Kind string

const (
	KindVelocityCheck   Kind = "velocity_check"
	KindTimeAnomaly     Kind = "time_anomaly"
	KindMerchantAnomaly Kind = "merchant_anomaly"
	KindAmountDeviation Kind = "amount_deviation"
)

// Reason categories, the prefix of every flag reason.
const (
	CategoryVelocity = "Velocity"
	CategoryTime     = "Time anomaly"
	CategoryMerchant = "Merchant anomaly"
	CategoryAmount   = "Amount anomaly"
)

// Kinds returns every rule kind in default application order.
func Kinds() []Kind {
	return []Kind{KindVelocityCheck, KindTimeAnomaly, KindMerchantAnomaly, KindAmountDeviation}
}

// applyFunc flags matching transactions and returns how many it flagged.
type applyFunc func(txs []*domain.Transaction, profiles domain.Profiles) int

// Rule is one configured detection rule.
type Rule struct {
	Kind     Kind
	Category string
	apply    applyFunc
}

// Apply runs the rule over the batch. Rules only append flags; they never
// clear them and never reorder txs. Decisions depend only on the input
// fields and the profile, not on flags set by earlier rules.
func (r Rule) Apply(txs []*domain.Transaction, profiles domain.Profiles) int {
	if r.apply == nil {
		return 0
	}
	return r.apply(txs, profiles)
}

// New builds the rule of the given kind with the given thresholds.
func New(kind Kind, cfg domain.RuleConfig) (Rule, error) {
	switch kind {
	case KindVelocityCheck:
		return Rule{Kind: kind, Category: CategoryVelocity, apply: velocityCheck(cfg)}, nil
	case KindTimeAnomaly:
		return Rule{Kind: kind, Category: CategoryTime, apply: timeAnomaly(cfg)}, nil
	case KindMerchantAnomaly:
		return Rule{Kind: kind, Category: CategoryMerchant, apply: merchantAnomaly(cfg)}, nil
	case KindAmountDeviation:
		return Rule{Kind: kind, Category: CategoryAmount, apply: amountDeviation(cfg)}, nil
	default:
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownRule, kind)
	}
}

// DefaultSet returns all four rules in the order Velocity, Time, Merchant, Amount.
func DefaultSet(cfg domain.RuleConfig) []Rule {
	set, _ := Set(cfg, Kinds())
	return set
}

// Set builds rules for the given kinds, in the given order.
func Set(cfg domain.RuleConfig, kinds []Kind) ([]Rule, error) {
	set := make([]Rule, 0, len(kinds))
	for _, k := range kinds {
		r, err := New(k, cfg)
		if err != nil {
			return nil, err
		}
		set = append(set, r)
	}
	return set, nil
}

// ParseKinds converts rule identifiers into kinds.
func ParseKinds(ids []string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(ids))
	for _, id := range ids {
		k := Kind(id)
		switch k {
		case KindVelocityCheck, KindTimeAnomaly, KindMerchantAnomaly, KindAmountDeviation:
			kinds = append(kinds, k)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownRule, id)
		}
	}
	return kinds, nil
}

// RunRules applies each rule in order and collects per-rule counts.
func RunRules(txs []*domain.Transaction, profiles domain.Profiles, set []Rule) []domain.RuleResult {
	results := make([]domain.RuleResult, 0, len(set))
	for _, r := range set {
		results = append(results, domain.RuleResult{
			Rule:    string(r.Kind),
			Flagged: r.Apply(txs, profiles),
		})
	}
	return results
}
