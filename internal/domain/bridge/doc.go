/*
Package bridge exposes the privileged operations a userscript may call.

Each script gets its own Handle, bound to the script id and the grants
its metadata declared. Values live under "value/<scriptID>/<key>" so two
scripts never see each other's storage. An operation without a matching
grant fails with ErrPermissionDenied; log is always allowed.

Cross-origin requests return immediately. Their completion is posted to
the handle's Turns queue and runs after the current turn of the script.
*/
package bridge
