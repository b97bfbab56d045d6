// Package normalisers turns files into plain text for ingestion.
// Each normaliser knows how to extract text from a specific MIME type;
// the Registry dispatches to the highest-priority match.
package normalisers
