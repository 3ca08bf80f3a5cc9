// Package services defines shared utilities consumed by the ingestion stages
// and their collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and page identifiers
//     for logging.
//   - Structured error markers plus the Wrap helper so a stage can classify a
//     failure (decode, payload, parsing, matching, storage) without losing the
//     underlying cause.
//
// Stages never abort a run on these errors; they log them with Kind and move
// on to the next batch.
package services
