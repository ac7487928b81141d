package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// controlRequest is the JSON envelope the qdcd CLI's stop/status
// subcommands send over the control socket to a running start process.
// Grounded on the command-envelope shape of
// internal/orchestrator/handler.go's CommandEnvelope/ResponseEnvelope,
// reduced to the two verbs the CLI needs.
type controlRequest struct {
	Command string `json:"command"`
	UserID  string `json:"user_id,omitempty"`
}

type ControlResponse struct {
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	Position   int     `json:"position,omitempty"`
	ETASeconds float64 `json:"eta_seconds,omitempty"`
	State      string  `json:"state,omitempty"`
}

type controlServer struct {
	path     string
	listener net.Listener
}

func newControlServer(path string) *controlServer {
	return &controlServer{path: path}
}

func (c *controlServer) start(sup *Supervisor) error {
	_ = os.Remove(c.path)
	ln, err := net.Listen("unix", c.path)
	if err != nil {
		return fmt.Errorf("listen on control socket %s: %w", c.path, err)
	}
	c.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleControlConn(conn, sup)
		}
	}()
	return nil
}

func (c *controlServer) stop() {
	if c.listener != nil {
		_ = c.listener.Close()
	}
	_ = os.Remove(c.path)
}

func handleControlConn(conn net.Conn, sup *Supervisor) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	var req controlRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("control socket: malformed request")
		return
	}

	resp := dispatchControlRequest(sup, req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Warn().Err(err).Msg("control socket: failed to write response")
	}
}

func dispatchControlRequest(sup *Supervisor, req controlRequest) ControlResponse {
	switch req.Command {
	case "status":
		st := sup.Status(req.UserID)
		return ControlResponse{Status: "ok", State: st.State, Position: st.Position, ETASeconds: st.ETASeconds}
	case "stop":
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_ = sup.Shutdown(ctx)
		}()
		return ControlResponse{Status: "ok"}
	default:
		return ControlResponse{Status: "error", Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

// SendControlRequest is the client half used by the qdcd CLI's stop/status
// subcommands to talk to a running start process over its control socket.
func SendControlRequest(socketPath string, command, userID string) (ControlResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return ControlResponse{}, fmt.Errorf("connect to control socket %s: %w", socketPath, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(controlRequest{Command: command, UserID: userID}); err != nil {
		return ControlResponse{}, fmt.Errorf("send control request: %w", err)
	}

	var resp ControlResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return ControlResponse{}, fmt.Errorf("read control response: %w", err)
	}
	return resp, nil
}
