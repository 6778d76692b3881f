// Package rpc multiplexes channel calls and event streams over one message
// connection.
//
// Frames are JSON objects. Clients send
//
//	{"id": 1, "type": "call", "channel": "remotefilesystem", "name": "stat", "args": [...]}
//	{"id": 2, "type": "listen", "channel": "remotefilesystem", "name": "filechange", "args": ["session"]}
//	{"id": 2, "type": "dispose"}
//	{"id": 3, "type": "ping"}
//
// and receive result, error, event, end and pong frames carrying the same id.
package rpc

import (
	"github.com/GriffinCanCode/AgentOS/agent/internal/channel"
)

// Frame types
const (
	TypeCall    = "call"
	TypeListen  = "listen"
	TypeDispose = "dispose"
	TypePing    = "ping"

	TypeResult = "result"
	TypeError  = "error"
	TypeEvent  = "event"
	TypeEnd    = "end"
	TypePong   = "pong"
)

// Request is a client frame
type Request struct {
	ID      int64        `json:"id"`
	Type    string       `json:"type"`
	Channel string       `json:"channel,omitempty"`
	Name    string       `json:"name,omitempty"`
	Args    channel.Args `json:"args,omitempty"`
}

// Response is a server frame
type Response struct {
	ID    int64       `json:"id"`
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed call or listen
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorBody(err error) *ErrorBody {
	return &ErrorBody{Code: channel.Code(err), Message: err.Error()}
}
