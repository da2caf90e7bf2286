// Package deliberation runs the council: every seated role analyzes a
// decision in parallel, the verdicts are aggregated into a consensus, and the
// result is enriched with news context, persisted, cached and announced.
//
// Service is the business boundary used by the HTTP API. Engine owns the LLM
// calls and knows nothing about storage.
package deliberation
