// Package ws exposes the RPC protocol over WebSocket.
//
// Each upgraded connection gets a fresh connection ID and a caller bound to
// the remote authority from the authority query parameter. All frames on
// the connection are served by an rpc.Server until the client disconnects,
// at which point every listener it attached is disposed.
//
// Example Usage:
//
//	handler := ws.NewHandler(rpcServer, ws.Options{}, logger, metrics)
//	router.GET("/stream", handler.HandleConnection)
package ws
