// Package remote implements the informational slice of the remote
// control surface, spec.md §6.3: JSON-RPC over TCP exposing run control
// and state queries. Per spec.md, the full surface is out of scope; this
// package wires getSystemState and getDAQStats, the two read-only
// methods that have a concrete, testable shape without a running
// controller.
package remote

import (
	"encoding/json"
	"fmt"
	"net"
)

// RPCError is a JSON-RPC error: a numeric code with a human message,
// spec.md §6.3 "Errors are numeric codes with a human message."
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("remote: %d: %s", e.Code, e.Message) }

// Error codes for the methods this package implements.
const (
	ErrUnknownMethod = 1
	ErrInternal      = 2
)

// SystemState is the payload for getSystemState.
type SystemState struct {
	RunState    string `json:"runState"` // "idle", "running", "paused", "replaying"
	RunID       string `json:"runId,omitempty"`
	ControllerConnected bool `json:"controllerConnected"`
}

// DAQStats is the payload for getDAQStats.
type DAQStats struct {
	BuffersRead  uint64 `json:"buffersRead"`
	BytesRead    uint64 `json:"bytesRead"`
	EventsBuilt  uint64 `json:"eventsBuilt"`
	Exceptions   uint64 `json:"exceptions"`
}

// StateProvider supplies live values for the informational methods;
// daqrun implements it over the running pipeline's counters.
type StateProvider interface {
	SystemState() SystemState
	DAQStats() DAQStats
}

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Server is a minimal JSON-RPC-over-TCP server exposing the
// informational methods. Unrecognized methods (startDAQ, stopDAQ,
// startReplay, loadAnalysis, loadListfile, getVMEControllerState) are
// named in spec.md §6.3 but are out of scope here; they return
// ErrUnknownMethod rather than being silently accepted.
type Server struct {
	ln       net.Listener
	provider StateProvider
}

// Listen starts the remote control server on addr.
func Listen(addr string, provider StateProvider) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{ln: ln, provider: provider}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.handle(req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) handle(req request) response {
	switch req.Method {
	case "getSystemState":
		return response{ID: req.ID, Result: s.provider.SystemState()}
	case "getDAQStats":
		return response{ID: req.ID, Result: s.provider.DAQStats()}
	default:
		return response{ID: req.ID, Error: &RPCError{Code: ErrUnknownMethod, Message: "method not implemented: " + req.Method}}
	}
}

// Close stops the server.
func (s *Server) Close() error {
	return s.ln.Close()
}
