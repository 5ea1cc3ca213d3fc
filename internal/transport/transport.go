// Package transport wraps github.com/pebbe/zmq4 DEALER/ROUTER CURVE
// sockets, implementing spec.md §6's wire protocol: CURVE-authenticated
// TCP, each message carried as a single payload frame with no empty
// delimiter frame (a ROUTER adds only its routing-id frame), one ROUTER
// socket per node
// (C7's listener) and one DEALER socket per enabled peer (C6's outbound
// session). Grounded on taco/clients.py / taco/server.py (which build
// REQ/REP CURVE sockets over pyzmq) and on
// other_examples/b688115f_zeromq-gyre__node.go.go, a Go P2P node built on
// the same zmq4 binding; upgraded from REQ/REP to DEALER/ROUTER per
// spec.md §4.6 ("DEALER-style session") so sends don't block on a
// matching reply.
package transport

import (
	"fmt"
	"time"

	"github.com/pebbe/zmq4"
)

// Frame is one received [identity-or-empty, payload] message.
type Frame struct {
	RouterID string // only set for frames read off a ROUTER socket
	Payload  []byte
}

// Dealer is one outbound session to a single peer (C6).
type Dealer struct {
	sock *zmq4.Socket
}

// DialDealer connects a DEALER socket to addr, configured to authenticate
// with clientKeys and expect peerServerPublicKey from the far end.
func DialDealer(addr string, clientKeys CurveKeyPair, peerServerPublicKey string) (*Dealer, error) {
	sock, err := zmq4.NewSocket(zmq4.DEALER)
	if err != nil {
		return nil, fmt.Errorf("transport: new DEALER socket: %w", err)
	}
	if err := sock.SetLinger(0); err != nil {
		return nil, err
	}
	if err := sock.SetCurveSecretkey(clientKeys.Secret); err != nil {
		return nil, err
	}
	if err := sock.SetCurvePublickey(clientKeys.Public); err != nil {
		return nil, err
	}
	if err := sock.SetCurveServerkey(peerServerPublicKey); err != nil {
		return nil, err
	}
	if err := sock.Connect(addr); err != nil {
		return nil, fmt.Errorf("transport: connect %s: %w", addr, err)
	}
	return &Dealer{sock: sock}, nil
}

// Send writes payload as a single-frame DEALER message. No empty
// delimiter frame is added; the far ROUTER receives [routing-id,
// payload].
func (d *Dealer) Send(payload []byte) error {
	_, err := d.sock.SendBytes(payload, 0)
	return err
}

// RecvTimeout polls for an inbound frame without blocking past a short
// deadline; ok=false means nothing arrived.
func (d *Dealer) RecvTimeout() ([]byte, bool, error) {
	items := zmq4.PollItems{{Socket: d.sock, Events: zmq4.POLLIN}}
	n, err := items.Poll(0)
	if err != nil {
		return nil, false, err
	}
	if n == 0 || items[0].REvents&zmq4.POLLIN == 0 {
		return nil, false, nil
	}
	b, err := d.sock.RecvBytes(0)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (d *Dealer) Close() error { return d.sock.Close() }

// CurveKeyPair is the minimal shape transport needs from keystore.KeyPair,
// duplicated here (rather than imported) to avoid a dependency cycle
// between transport and keystore.
type CurveKeyPair struct {
	Public string
	Secret string
}

// Router is the single inbound listener (C7).
type Router struct {
	sock *zmq4.Socket
}

// BindRouter binds a ROUTER socket at addr, CURVE-authenticated as server
// with serverKeys.
func BindRouter(addr string, serverKeys CurveKeyPair) (*Router, error) {
	sock, err := zmq4.NewSocket(zmq4.ROUTER)
	if err != nil {
		return nil, fmt.Errorf("transport: new ROUTER socket: %w", err)
	}
	if err := sock.SetLinger(0); err != nil {
		return nil, err
	}
	if err := sock.SetCurveServer(1); err != nil {
		return nil, err
	}
	if err := sock.SetCurveSecretkey(serverKeys.Secret); err != nil {
		return nil, err
	}
	if err := sock.SetCurvePublickey(serverKeys.Public); err != nil {
		return nil, err
	}
	if err := sock.Bind(addr); err != nil {
		return nil, fmt.Errorf("transport: bind %s: %w", addr, err)
	}
	return &Router{sock: sock}, nil
}

// PollTimeoutMillis is the ROUTER poll timeout from spec.md §5 ("C7 blocks
// on a poll with 200ms timeout").
const PollTimeoutMillis = 200

// Recv blocks up to PollTimeoutMillis for one inbound [routing-id, payload]
// frame pair. ok=false on timeout.
func (r *Router) Recv() (Frame, bool, error) {
	items := zmq4.PollItems{{Socket: r.sock, Events: zmq4.POLLIN}}
	n, err := items.Poll(PollTimeoutMillis * time.Millisecond)
	if err != nil {
		return Frame{}, false, err
	}
	if n == 0 {
		return Frame{}, false, nil
	}
	parts, err := r.sock.RecvMessageBytes(0)
	if err != nil {
		return Frame{}, false, err
	}
	if len(parts) < 2 {
		return Frame{}, false, fmt.Errorf("transport: short ROUTER frame (%d parts)", len(parts))
	}
	return Frame{RouterID: string(parts[0]), Payload: parts[1]}, true, nil
}

// Send replies to routerID with payload.
func (r *Router) Send(routerID string, payload []byte) error {
	_, err := r.sock.SendMessage(routerID, payload)
	return err
}

func (r *Router) Close() error { return r.sock.Close() }

// Authenticator wraps zmq4's built-in ZAP handler, restricted to CURVE
// public keys read from a directory, per spec.md §4.7: "creates an
// authenticator that accepts only peers whose public keys are present in
// the public key directory". Grounded on pebbe/zmq4's AuthStart/
// AuthCurveAdd/AuthCurveRemove ZAP wrapper.
type Authenticator struct {
	domain  string
	allowed map[string]bool
}

// NewAuthenticator starts the ZAP handler (idempotent: zmq4 only starts
// it once per process) and returns an Authenticator for the given
// CURVE domain (conventionally "*", matching every server socket).
func NewAuthenticator(domain string) (*Authenticator, error) {
	if err := zmq4.AuthStart(); err != nil {
		return nil, fmt.Errorf("transport: starting authenticator: %w", err)
	}
	return &Authenticator{domain: domain, allowed: map[string]bool{}}, nil
}

// Reconfigure replaces the set of allowed CURVE public keys with
// exactly publicKeys, per spec.md §4.7's "on every authenticator-version
// bump... reconfigure the authenticator to reflect the current
// directory contents".
func (a *Authenticator) Reconfigure(publicKeys []string) {
	wanted := map[string]bool{}
	for _, k := range publicKeys {
		wanted[k] = true
	}
	var toRemove []string
	for k := range a.allowed {
		if !wanted[k] {
			toRemove = append(toRemove, k)
		}
	}
	if len(toRemove) > 0 {
		zmq4.AuthCurveRemove(a.domain, toRemove...)
	}
	var toAdd []string
	for k := range wanted {
		if !a.allowed[k] {
			toAdd = append(toAdd, k)
		}
	}
	if len(toAdd) > 0 {
		zmq4.AuthCurveAdd(a.domain, toAdd...)
	}
	a.allowed = wanted
}

func (a *Authenticator) Stop() { zmq4.AuthStop() }
