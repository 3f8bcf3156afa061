package domain

// RuleConfig holds the heuristic thresholds shared by the detection rules.
type RuleConfig struct {
	VelocityWindowMinutes        int     `json:"velocityWindowMinutes" mapstructure:"velocity_window_minutes"`
	VelocityThresholdCount       int     `json:"velocityThresholdCount" mapstructure:"velocity_threshold_count"`
	TimeAnomalyHourTolerance     int     `json:"timeAnomalyHourTolerance" mapstructure:"time_anomaly_hour_tolerance"`
	MerchantAnomalyRiskThreshold float64 `json:"merchantAnomalyRiskThreshold" mapstructure:"merchant_anomaly_risk_threshold"`
	AmountDeviationStdThreshold  float64 `json:"amountDeviationStdThreshold" mapstructure:"amount_deviation_std_threshold"`
	MinUserHistory               int     `json:"minUserHistory" mapstructure:"min_user_history"`
}

// DefaultRuleConfig returns the stock thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		VelocityWindowMinutes:        30,
		VelocityThresholdCount:       3,
		TimeAnomalyHourTolerance:     3,
		MerchantAnomalyRiskThreshold: 0.5,
		AmountDeviationStdThreshold:  2.5,
		MinUserHistory:               3,
	}
}

// RuleResult is the number of transactions one rule flagged in one pass.
type RuleResult struct {
	Rule    string `json:"rule"`
	Flagged int    `json:"flagged"`
}

// RuleStats converts ordered results into a rule -> count map.
func RuleStats(results []RuleResult) map[string]int {
	stats := make(map[string]int, len(results))
	for _, r := range results {
		stats[r.Rule] = r.Flagged
	}
	return stats
}

// FraudDetectionResult is the outcome of a single-transaction check.
type FraudDetectionResult struct {
	IsFraud   bool           `json:"isFraud"`
	RuleStats map[string]int `json:"ruleStats"`
}

// NewFraudDetectionResult derives IsFraud as the OR over non-zero rule counts.
func NewFraudDetectionResult(results []RuleResult) *FraudDetectionResult {
	res := &FraudDetectionResult{RuleStats: RuleStats(results)}
	for _, r := range results {
		if r.Flagged > 0 {
			res.IsFraud = true
		}
	}
	return res
}
