// Package httpapi exposes an authcore Engine over HTTP.
//
// [NewRouter] returns a gorilla/mux router serving the /auth/* JSON routes,
// /healthz and, when configured, /metrics. Every response uses the envelope
//
//	{"success": bool, "message": string, "data": any}
//
// Access and refresh tokens travel in HttpOnly, SameSite=Strict cookies.
// [Handler.writeError] is the single place where an error becomes a status
// code; it switches over every [authcore.Kind].
package httpapi
