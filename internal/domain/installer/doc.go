/*
Package installer runs the install lifecycle of a userscript:

	Fetched → Validated → Inserted | UpdateApplied | Rejected | DuplicateNoOp

with FetchError, MalformedMetadata, ResourceFetchError and StaleVersion as
the ways an attempt can end early. Every attempt returns a Result tagged
with exactly one Outcome.

Attempts for the same (name, namespace) run one at a time. Fetches are
never retried here; callers retry explicitly. Required resources are
fetched concurrently and cached only when all of them arrived. Once the
store accepts the script the attempt is committed and cancellation no
longer applies.
*/
package installer
