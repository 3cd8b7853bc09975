/*
Package persistence provides the key/value backends behind the script
store snapshot, the resource cache and per-script values.

Keys are flat strings; callers namespace them with prefixes such as
"value/<scriptID>/" or "resource/".
*/
package persistence
