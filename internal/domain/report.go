package domain

import "time"

// Report summarizes one batch analysis pass.
type Report struct {
	TotalTransactions        int            `json:"total_transactions"`
	SuspiciousTransactions   int            `json:"suspicious_transactions"`
	SuspiciousPercentage     float64        `json:"suspicious_percentage"`
	TotalUsers               int            `json:"total_users"`
	UsersWithFlags           int            `json:"users_with_flags"`
	UsersWithFlagsPercentage float64        `json:"users_with_flags_percentage"`
	RuleBreakdown            map[string]int `json:"rule_breakdown"`
	Config                   RuleConfig     `json:"config"`
	Timestamp                time.Time      `json:"timestamp"`
}

// Run is a persisted batch analysis pass.
type Run struct {
	ID             string         `json:"id"`
	Report         *Report        `json:"report"`
	RuleResults    []RuleResult   `json:"ruleResults"`
	Flagged        []*Transaction `json:"flagged,omitempty"`
	OutputExported bool           `json:"outputExported"`
	ReportExported bool           `json:"reportExported"`
	Metadata       RunMetadata    `json:"metadata"`
}

// RunMetadata contains processing information for a run.
type RunMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	LoadMs        int64  `json:"loadMs"`
	RulesMs       int64  `json:"rulesMs"`
	TotalMs       int64  `json:"totalMs"`
	ProfilesBuilt int    `json:"profilesBuilt"`
	EngineVersion string `json:"engineVersion"`
}
