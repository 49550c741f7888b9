// Package server exposes state stores over HTTP and WebSocket.
//
// Each WebSocket connection gets its own state store, bound through a
// ClientLocation to the URL of the browser tab on the other end. The thin
// client reports the URL and user changes; the server answers with state
// snapshots and fragment rewrites:
//
//	client → server   {"type":"load","href":"https://example.com/#brand=gmc"}
//	client → server   {"type":"hashchange","href":"https://example.com/#brand=chevrolet"}
//	client → server   {"type":"set","query":{"year":"2024"}}
//
//	server → client   {"type":"state","state":{...},"classes":[...]}
//	server → client   {"type":"replace","hash":"#brand=gmc&year=2024","href":"..."}
//	server → client   {"type":"rejected","validParams":{...},"invalidParams":{...},"error":"..."}
//
// A shared store is also available over plain HTTP for tools:
//
//	GET  /state          current snapshot and classes
//	GET  /state/{key}    one value
//	POST /state          JSON object, validated and committed as one batch
//	GET  /healthz
//	GET  /metrics        when ServerConfig.Metrics is set
package server
