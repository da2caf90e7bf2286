// Package council defines the decision-analysis domain shared by the console
// and the analysis service: council roles, verdicts, per-agent analyses and the
// consensus result returned by POST /analyze.
package council
