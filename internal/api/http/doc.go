// Package http exposes the script manager over a JSON API.
//
// Routes:
//
//	GET    /scripts               installed scripts in install order
//	POST   /scripts               install from url or inline source
//	GET    /scripts/:id           details, effective rules, diagnostics
//	GET    /scripts/:id/source    source as installed
//	POST   /scripts/:id/enable    enable
//	POST   /scripts/:id/disable   disable
//	POST   /scripts/:id/update    re-fetch from the update location
//	DELETE /scripts/:id           uninstall
//	GET    /dispatch?url=&phase=  scripts selected for a navigation
//	POST   /navigate              select and run scripts in the sandbox
//	POST   /detect                installable links in an HTML page
package http
