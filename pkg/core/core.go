/*
Package core is the request orchestrator: it wires pkg/codec and pkg/
verifier (decode + authenticate a credential), pkg/delegation and pkg/kv
(authorize and execute what it asks for), and pkg/eventlog (commit the
result), all inside the single pkg/metadb transaction spec.md §5 requires
per request. It has no HTTP concerns of its own — pkg/httpapi translates
Core's two methods into the §6 surface and maps returned *tcerr.Error
values to status codes.

Grounded on the teacher's pkg/manager.Manager: one struct holding every
collaborator, built by one constructor, exposing narrow request-shaped
methods instead of a general-purpose API.
*/
package core

import (
	"context"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/blobstore"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/eventbus"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/keys"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/kv"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/metadb"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/verifier"
)

// Config controls how a Core is assembled.
type Config struct {
	// MetaDBPath is passed to metadb.Open; ":memory:" is valid for tests.
	MetaDBPath string
	// Store backs every space's content-addressed blobs. Callers choose
	// the backend (pkg/blobstore.Memory/Filesystem/Bolt/Either).
	Store blobstore.Store
	// Secret seeds every space's host did:key (spec.md §5).
	Secret [keys.SecretSize]byte
	// MaxSpaceBytes bounds per-space blob storage; zero is unlimited.
	MaxSpaceBytes int64
	// Clock lets tests fix "now"; nil defaults to verifier.RealClock.
	Clock verifier.Clock
	// Bus receives one Event per space touched by each committed
	// delegation, revocation, and invocation. Nil is valid — Core creates and starts its own, and
	// stops it in Close. A caller-supplied Bus is assumed already
	// started and is left running when Close returns.
	Bus *eventbus.Broker
}

// Core holds every collaborator a request needs and the one metadb handle
// they all share transactions against.
type Core struct {
	db      *metadb.DB
	store   blobstore.Store
	secret  [keys.SecretSize]byte
	kvCfg   kv.Config
	clock   verifier.Clock
	bus     *eventbus.Broker
	ownsBus bool
}

// New opens the metadata store and assembles a Core ready to serve
// requests. Callers own Store's lifecycle; Core never closes it.
func New(cfg Config) (*Core, error) {
	db, err := metadb.Open(cfg.MetaDBPath)
	if err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = verifier.RealClock{}
	}
	bus, ownsBus := cfg.Bus, false
	if bus == nil {
		bus, ownsBus = eventbus.NewBroker(), true
		bus.Start()
	}
	return &Core{
		db:      db,
		store:   cfg.Store,
		secret:  cfg.Secret,
		kvCfg:   kv.Config{MaxSpaceBytes: cfg.MaxSpaceBytes},
		clock:   clock,
		bus:     bus,
		ownsBus: ownsBus,
	}, nil
}

// Close releases the metadata store and, if Core created its own event
// bus (Config.Bus was nil), stops it too.
func (c *Core) Close() error {
	if c.ownsBus {
		c.bus.Stop()
	}
	return c.db.Close()
}

// Subscribe registers a new subscriber to the commit-notification bus.
func (c *Core) Subscribe() eventbus.Subscriber {
	return c.bus.Subscribe()
}

// Unsubscribe removes a subscriber registered with Subscribe.
func (c *Core) Unsubscribe(sub eventbus.Subscriber) {
	c.bus.Unsubscribe(sub)
}

// Healthy reports whether the metadata store is reachable — GET /healthz.
func (c *Core) Healthy(ctx context.Context) error {
	return c.db.Ping(ctx)
}

// GeneratePeer derives a space's host did:key, deterministically, from the
// server secret — GET /peer/generate/{space-id}. No storage is touched:
// the same (secret, space) pair always yields the same DID.
func (c *Core) GeneratePeer(space tctypes.SpaceID) (tctypes.DID, error) {
	return keys.DeriveDID(c.secret, space)
}

// SpaceCount reports the total number of hosted spaces, polled by
// MetricsCollector for the metrics.SpacesTotal gauge.
func (c *Core) SpaceCount(ctx context.Context) (int64, error) {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	return tx.CountSpaces()
}
