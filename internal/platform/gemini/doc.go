// Package gemini implements the generation.Generator interface using
// Google's Gemini API via the google.golang.org/genai client. It translates
// provider-specific failures into the generation package's sentinel errors
// so the rest of the application stays provider-agnostic.
package gemini
