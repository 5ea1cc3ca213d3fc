// Package serverengine implements C7 (spec.md §4.7): the single inbound
// ROUTER listener, dispatching each request through C4 and replying, and
// tracking each peer's client_last_request_time. Grounded on the
// teacher's accept-loop style (one blocking poll per iteration, checked
// against a stop signal) generalized from TCP accept to a single
// long-lived ROUTER socket, since ZMQ's ROUTER pattern has no
// per-connection accept step.
package serverengine

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"

	"github.com/taconet/taco/internal/command"
	"github.com/taconet/taco/internal/transport"
)

var logger = log.Default.WithNames("taco", "serverengine")

// Host is what C7 needs: the full command.Host contract plus a way to
// record that a peer's request was just seen (for C8's peer liveness
// gate, Supervisor.peerLive) and the key-store
// accessors driving authenticator reconfiguration.
type Host interface {
	command.Host
	RecordInboundActivity(peerID string, at time.Time)
	PublicKeyDir() string
	KeyStoreVersion() int64
}

// Engine runs the C7 loop until Stop is called.
type Engine struct {
	host   Host
	router *transport.Router
	auth   *transport.Authenticator
	stop   chansync.SetOnce

	lastAuthVersion int64
}

// New binds a ROUTER socket at addr with serverKeys, starts the CURVE
// authenticator, and returns an Engine ready to Run.
func New(host Host, addr string, serverKeys transport.CurveKeyPair) (*Engine, error) {
	router, err := transport.BindRouter(addr, serverKeys)
	if err != nil {
		return nil, err
	}
	auth, err := transport.NewAuthenticator("*")
	if err != nil {
		router.Close()
		return nil, err
	}
	e := &Engine{host: host, router: router, auth: auth, lastAuthVersion: -1}
	e.reconfigureAuthenticator()
	return e, nil
}

// Stop signals the loop to exit after its current poll.
func (e *Engine) Stop() { e.stop.Set() }

// Run blocks, polling the ROUTER socket with spec.md §5's 200ms timeout,
// dispatching each frame through C4 and replying unless process_request
// returned no identity (a malformed frame, per spec.md §4.4). Before
// each poll it checks whether C2's settings-version has bumped and, if
// so, reconfigures the authenticator from the current public key
// directory contents, per spec.md §4.7.
func (e *Engine) Run() {
	for !e.stop.IsSet() {
		e.reconfigureAuthenticator()

		frame, ok, err := e.router.Recv()
		if err != nil {
			logger.Levelf(log.Warning, "router recv failed: %v", err)
			continue
		}
		if !ok {
			continue
		}

		identity, reply := command.ProcessRequest(e.host, frame.Payload)
		if identity == command.NoIdentity {
			continue
		}
		e.host.RecordInboundActivity(identity, time.Now())

		if reply == nil {
			continue
		}
		if err := e.router.Send(frame.RouterID, reply); err != nil {
			logger.Levelf(log.Warning, "router send to %s failed: %v", frame.RouterID, err)
		}
	}
	e.auth.Stop()
	e.router.Close()
}

func (e *Engine) reconfigureAuthenticator() {
	version := e.host.KeyStoreVersion()
	if version == e.lastAuthVersion {
		return
	}
	keys, err := readServerKeys(e.host.PublicKeyDir())
	if err != nil {
		logger.Levelf(log.Warning, "reading public key directory failed: %v", err)
		return
	}
	e.auth.Reconfigure(keys)
	e.lastAuthVersion = version
	logger.Levelf(log.Debug, "authenticator reconfigured, %d keys, version=%d", len(keys), version)
}

// readServerKeys reads the keys this server accepts: every "*-client.key"
// file in dir. A peer dials in with its DEALER socket, which presents
// that peer's client key pair (transport.DialDealer), matching spec.md
// §6's naming convention.
func readServerKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, ent := range entries {
		if !strings.HasSuffix(ent.Name(), "-client.key") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			continue
		}
		keys = append(keys, string(b))
	}
	return keys, nil
}
