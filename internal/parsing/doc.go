// Package parsing turns raw torrent names into structured media records.
//
// Two interchangeable backends satisfy the pipeline's parser contract:
// RLSParser parses in-process with github.com/moistari/rls, while HTTPClient
// posts batches to an out-of-process parser service and maps the response
// back to the batch by info hash. Both fill NormalizedTitle so records are
// ready for catalog matching.
package parsing
