package classifier

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/datamind/dispatch/internal/core"
)

// PII patterns scanned against the raw query text. A hit forces the query
// onto on-premise tiers regardless of every other signal, so these run
// before any keyword matching.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),       // email
	regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),                          // phone (NANP)
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                                  // US SSN
	regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14})\b`),        // credit card
	regexp.MustCompile(`\b[A-Z]{2}\d{6}[A-Z]\b`),                                 // passport-like
}

var restrictedKeywords = []string{
	"ssn", "social security", "passport", "credit card", "bank account",
	"national insurance", "ni number", "medical record", "diagnosis",
	"prescription", "patient", "salary", "payroll", "compensation",
	"personal email", "home address", "date of birth", "dob",
}

var confidentialKeywords = []string{
	"employee", "staff", "hr data", "performance review", "disciplinary",
	"financial report", "revenue", "profit", "margin", "ebitda",
	"customer pii", "user data", "personal data", "private", "confidential",
	"internal only", "trade secret", "ip address", "access log",
}

var internalKeywords = []string{
	"internal", "company data", "proprietary", "non-public",
	"customer list", "vendor", "contract",
}

// RuleBasedSensitivityDetector classifies sensitivity with regexes and
// keyword sets only. No network, deterministic, auditable — this is the
// component the safety gate depends on, so it must not have a degraded
// mode of its own.
type RuleBasedSensitivityDetector struct{}

// NewRuleBasedSensitivityDetector returns the detector.
func NewRuleBasedSensitivityDetector() *RuleBasedSensitivityDetector {
	return &RuleBasedSensitivityDetector{}
}

// Detect returns (level, confidence). First match wins: PII regex (0.98),
// restricted keywords (0.90), confidential (0.82), internal (0.75),
// otherwise public (0.88).
func (d *RuleBasedSensitivityDetector) Detect(query string) (core.SensitivityLevel, float64) {
	for _, pattern := range piiPatterns {
		if pattern.MatchString(query) {
			slog.Warn("PII detected in query text", "pattern", truncate(pattern.String(), 30))
			return core.SensitivityRestricted, 0.98
		}
	}

	q := strings.ToLower(query)
	if containsAny(q, restrictedKeywords) {
		return core.SensitivityRestricted, 0.90
	}
	if containsAny(q, confidentialKeywords) {
		return core.SensitivityConfidential, 0.82
	}
	if containsAny(q, internalKeywords) {
		return core.SensitivityInternal, 0.75
	}
	return core.SensitivityPublic, 0.88
}

func containsAny(q string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
