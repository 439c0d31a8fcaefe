// Package hostio connects the coordinator to a game runtime running in
// another process, using one JSON object per line in each direction.
//
// Requests (runtime to linkgate):
//
//	{"op":"join","session":"<uuid>","name":"Steve","pos":{"world":"world","x":10,"y":20,"z":30}}
//	{"op":"move","session":"<uuid>","pos":{...}}
//	{"op":"command","session":"<uuid>","command":"register","pos":{...}}
//	{"op":"message","session":"<uuid>","channel":"clipstone:registration","payload":"<base64>"}
//	{"op":"quit","session":"<uuid>"}
//
// Replies (linkgate to runtime):
//
//	{"op":"notify","session":"<uuid>","kind":"token","text":"...","copy":"<uuid>"}
//	{"op":"move","session":"<uuid>","allowed":false,"pos":{...}}
//	{"op":"error","error":"..."}
//
// Every move request gets exactly one move reply. A disallowed move carries
// the position the runtime must put the session back at.
package hostio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/linkgate/internal/engine"
	"github.com/roach88/linkgate/internal/freeze"
)

// maxLine bounds one request line. Payloads are small; this leaves room
// for base64 overhead on the largest legal assertion.
const maxLine = 256 * 1024

// Position is the wire form of freeze.Position.
type Position struct {
	World string  `json:"world,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

func (p *Position) toFreeze() freeze.Position {
	if p == nil {
		return freeze.Position{}
	}
	return freeze.Position{World: p.World, X: p.X, Y: p.Y, Z: p.Z}
}

func fromFreeze(p freeze.Position) *Position {
	return &Position{World: p.World, X: p.X, Y: p.Y, Z: p.Z}
}

// Request is one line from the runtime.
type Request struct {
	Op      string    `json:"op"`
	Session string    `json:"session"`
	Name    string    `json:"name,omitempty"`
	Pos     *Position `json:"pos,omitempty"`
	Command string    `json:"command,omitempty"`
	Channel string    `json:"channel,omitempty"`
	Payload []byte    `json:"payload,omitempty"`
}

// Reply is one line to the runtime.
type Reply struct {
	Op      string    `json:"op"`
	Session string    `json:"session,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Text    string    `json:"text,omitempty"`
	Copy    string    `json:"copy,omitempty"`
	Allowed *bool     `json:"allowed,omitempty"`
	Pos     *Position `json:"pos,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Dispatcher receives runtime events. Implemented by *engine.Coordinator.
type Dispatcher interface {
	Join(id uuid.UUID, name string, pos freeze.Position) bool
	Command(id uuid.UUID, command string, pos freeze.Position) bool
	Message(id uuid.UUID, channelName string, payload []byte) bool
	Disconnect(id uuid.UUID) bool
	InterceptMove(id uuid.UUID, attempted freeze.Position) (freeze.Position, bool)
}

// syncer is a Dispatcher that can wait until the events it accepted have
// been handled.
type syncer interface {
	Sync(ctx context.Context) error
}

// Bridge is an engine.Host writing replies as JSON lines.
//
// Thread-safety: writes are serialized, since notices come from the
// coordinator loop and move replies from the Serve goroutine.
type Bridge struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger *slog.Logger
}

// NewBridge creates a bridge writing to w.
func NewBridge(w io.Writer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{enc: json.NewEncoder(w), logger: logger}
}

// Notify implements engine.Host.
func (b *Bridge) Notify(id uuid.UUID, fb engine.Feedback) {
	b.write(Reply{
		Op:      "notify",
		Session: id.String(),
		Kind:    string(fb.Kind),
		Text:    fb.Text,
		Copy:    fb.Copy,
	})
}

func (b *Bridge) write(r Reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enc.Encode(r); err != nil {
		b.logger.Error("write reply failed", "op", r.Op, "error", err)
	}
}

// Serve reads requests from r until EOF, a read error, or ctx is done.
// Sessions still connected when input ends are disconnected. At EOF a
// dispatcher with a Sync method finishes the requests already read first.
//
// Reading happens on its own goroutine so that a canceled ctx returns at
// once even while r blocks. That goroutine exits with the next line or EOF.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, d Dispatcher) error {
	online := make(map[uuid.UUID]struct{})
	defer func() {
		for id := range online {
			d.Disconnect(id)
		}
	}()

	lines, readErr := readLines(ctx, r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var line []byte
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}

		if !ok {
			select {
			case err := <-readErr:
				b.settle(ctx, d)
				if err != nil {
					return fmt.Errorf("read requests: %w", err)
				}
				return nil
			default:
				return ctx.Err()
			}
		}

		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			b.write(Reply{Op: "error", Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		if err := b.dispatch(req, d, online); err != nil {
			b.write(Reply{Op: "error", Session: req.Session, Error: err.Error()})
		}
	}
}

// settle waits for d to handle the requests already dispatched.
func (b *Bridge) settle(ctx context.Context, d Dispatcher) {
	s, ok := d.(syncer)
	if !ok {
		return
	}
	if err := s.Sync(ctx); err != nil {
		b.logger.Warn("pending requests not settled before disconnect", "error", err)
	}
}

// readLines scans r on a new goroutine. lines is closed when scanning stops;
// on EOF or a read error the scan error (nil at EOF) is sent on the second
// channel first.
func readLines(ctx context.Context, r io.Reader) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxLine)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	return lines, errc
}

func (b *Bridge) dispatch(req Request, d Dispatcher, online map[uuid.UUID]struct{}) error {
	id, err := uuid.Parse(req.Session)
	if err != nil {
		return fmt.Errorf("invalid session %q: %w", req.Session, err)
	}

	switch req.Op {
	case "join":
		online[id] = struct{}{}
		return accepted(d.Join(id, req.Name, req.Pos.toFreeze()))

	case "move":
		pin, blocked := d.InterceptMove(id, req.Pos.toFreeze())
		allowed := !blocked
		reply := Reply{Op: "move", Session: id.String(), Allowed: &allowed}
		if blocked {
			reply.Pos = fromFreeze(pin)
		}
		b.write(reply)
		return nil

	case "command":
		return accepted(d.Command(id, req.Command, req.Pos.toFreeze()))

	case "message":
		return accepted(d.Message(id, req.Channel, req.Payload))

	case "quit":
		delete(online, id)
		return accepted(d.Disconnect(id))

	default:
		return fmt.Errorf("unknown op %q", req.Op)
	}
}

func accepted(ok bool) error {
	if !ok {
		return engine.ErrStopped
	}
	return nil
}
