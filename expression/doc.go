// Package expression resolves rule guard expressions and payload
// templates. Templates mix literal text with a small closed vocabulary of
// calls: "input" substitutes the triggering payload, Read('topic') reads
// the latest remembered value for a topic, Calc(expr) evaluates
// arithmetic and comparisons through SQLite, and ::Name(args) invokes a
// stored script. Nested calls resolve inside-out; anything outside the
// vocabulary is literal and survives resolution byte for byte.
package expression
