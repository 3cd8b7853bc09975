/*
Package sandbox runs userscripts in isolated goja runtimes.

Each run starts from fresh globals. The runtime evaluates the script's
@require bodies in order, then the script body inside its own function
scope, then drains the script's bridge turn queue: callbacks from
GM_xmlhttpRequest and setTimeout run one at a time on the runtime's
goroutine, never concurrently with script code.

GM_* functions are bound to a bridge.Handle. A call the script did not
@grant throws a JavaScript exception carrying the permission error.

A run is interrupted when its context is done or the configured timeout
elapses, including while it waits for callbacks.
*/
package sandbox
