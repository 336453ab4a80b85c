// Package generation provides interfaces and implementations for interacting
// with external AI/LLM services. It abstracts the details of LLM API
// integration (Gemini), allowing the application to produce salary analyses,
// match scores, negotiation strategies, and job-posting extractions without
// coupling to a specific provider.
package generation
