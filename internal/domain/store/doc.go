/*
Package store keeps the installed userscripts.

Scripts are identified by (name, namespace). Installing a script whose
identity already exists replaces it in place: the id, list position,
enabled flag and install time carry over. Rules are compiled once per
install or enable and shared read-only with every reader.

Snapshots are a versioned list of independently encoded records,
compressed with zstd. A damaged record costs only itself on restore.
*/
package store
