// Package pipeline runs one ingestion pass as four bounded stages.
//
// Collect batches produced entries by info hash and applies the blacklist,
// parse hands each batch to a Parser, match enriches parsed records through a
// Matcher, and store hands them to a Sink. Stages are connected by buffered
// channels sized independently, so a slow consumer blocks its producer rather
// than dropping work.
//
// Shutdown is ordered: the producer and collect stage finish first, then
// each downstream queue is closed only after its producer stage has returned,
// so every batch that entered a queue is drained. Stage failures are logged
// and the batch is dropped; Run only fails for setup problems or when the
// producer itself fails. Summary carries the aggregate counts and satisfies
// Discovered == Stored + Dropped().
package pipeline
