// Package metadata parses userscript metadata blocks.
//
// A metadata block is the comment header delimited by
//
//	// ==UserScript==
//	// @key value
//	// ==/UserScript==
//
// which must be the first non-blank content of the script. The scanner is
// deliberately loose: each line is parsed on its own, unknown keys are
// skipped, single-valued keys keep their last occurrence and multi-valued
// keys (include, exclude, match, require, resource, grant) accumulate in
// the order they appear.
package metadata
