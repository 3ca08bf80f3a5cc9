// Package textutil provides the title normalization and edit distance
// primitives shared by the parser adapters and the catalog matcher.
//
// NormalizeTitle folds case, strips diacritics and collapses punctuation and
// whitespace so that release names and catalog titles compare on the same
// footing. Distance is a bounded Levenshtein distance over runes that stops
// early once the budget is exceeded.
package textutil
