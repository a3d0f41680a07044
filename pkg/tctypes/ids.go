/*
Package tctypes defines the data model shared by every core package: DIDs,
space and resource identifiers, capabilities, the three event kinds,
epochs, and KV write records — spec.md §3.

These types carry no behavior beyond parsing, string rendering, and the
small predicates the rest of the engine needs (extension, containment,
hashing). Heavier logic — signature verification, attenuation, epoch
construction — lives in the packages that consume these types.
*/
package tctypes

import (
	"fmt"
	"strings"
)

// DID is a decentralized identifier string, e.g.
// "did:pkh:eip155:1:0xAbC...123" or "did:key:z6Mk...".
type DID string

// WithoutFragment strips a trailing "#..." fragment, the normalization
// spec.md §4.4 requires so a session key's fragment-qualified DID URL
// compares equal to its base DID.
func (d DID) WithoutFragment() DID {
	if i := strings.IndexByte(string(d), '#'); i >= 0 {
		return d[:i]
	}
	return d
}

// IsPKH reports whether d is a did:pkh DID (an Ethereum account).
func (d DID) IsPKH() bool {
	return strings.HasPrefix(string(d), "did:pkh:")
}

// IsKey reports whether d is a did:key DID (an Ed25519 session/service key).
func (d DID) IsKey() bool {
	return strings.HasPrefix(string(d), "did:key:")
}

// PKHAccount splits a did:pkh DID into its CAIP-2 namespace, chain
// reference, and account address, e.g. "eip155", "1", "0xAbC...".
func (d DID) PKHAccount() (namespace, chainRef, account string, ok bool) {
	const prefix = "did:pkh:"
	if !strings.HasPrefix(string(d), prefix) {
		return "", "", "", false
	}
	rest := strings.TrimPrefix(string(d), prefix)
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// SpaceID is "tinycloud:{did-suffix}:{name}".
type SpaceID string

// NewSpaceID builds a SpaceID from its owner DID (minus the "did:" prefix)
// and a name.
func NewSpaceID(owner DID, name string) SpaceID {
	suffix := strings.TrimPrefix(string(owner), "did:")
	return SpaceID(fmt.Sprintf("tinycloud:%s:%s", suffix, name))
}

// ParseSpaceID validates and parses a raw space ID string.
func ParseSpaceID(s string) (SpaceID, error) {
	if !strings.HasPrefix(s, "tinycloud:") {
		return "", fmt.Errorf("space id must start with tinycloud:: %q", s)
	}
	rest := strings.TrimPrefix(s, "tinycloud:")
	idx := strings.LastIndexByte(rest, ':')
	if idx <= 0 || idx == len(rest)-1 {
		return "", fmt.Errorf("space id missing did-suffix or name: %q", s)
	}
	return SpaceID(s), nil
}

// OwnerDID reconstructs the owner's DID from the space ID's did-suffix.
func (s SpaceID) OwnerDID() DID {
	rest := strings.TrimPrefix(string(s), "tinycloud:")
	idx := strings.LastIndexByte(rest, ':')
	if idx <= 0 {
		return ""
	}
	return DID("did:" + rest[:idx])
}

// Name returns the space's short label, the last ":"-delimited segment.
func (s SpaceID) Name() string {
	rest := string(s)
	idx := strings.LastIndexByte(rest, ':')
	if idx < 0 || idx == len(rest)-1 {
		return ""
	}
	return rest[idx+1:]
}

func (s SpaceID) String() string { return string(s) }

// Service names recognized in a ResourceID.
const (
	ServiceKV           = "kv"
	ServiceCapabilities = "capabilities"
	ServiceSpace        = "space"
	ServiceSQL          = "sql"
)

// ResourceID is "{space-id}/{service}[/{path}][?query][#fragment]" —
// spec.md §3. Path is kept as the raw slash-delimited string; no
// normalization is performed, matching the spec's explicit statement that
// path component is not normalized.
type ResourceID struct {
	Space    SpaceID
	Service  string
	Path     string
	Query    string
	Fragment string
}

// ParseResource parses a structured resource URI. It does not attempt to
// parse opaque (non-tinycloud:) resource URIs; callers that need to accept
// both structured and opaque resources should catch ParseResource's error
// and fall back to treating the string as opaque.
func ParseResource(raw string) (ResourceID, error) {
	rest := raw
	var fragment string
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		fragment = rest[i+1:]
		rest = rest[:i]
	}
	var query string
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		query = rest[i+1:]
		rest = rest[:i]
	}
	if !strings.HasPrefix(rest, "tinycloud:") {
		return ResourceID{}, fmt.Errorf("not a tinycloud resource: %q", raw)
	}

	// rest = "tinycloud:{did-suffix}:{name}/{service}[/{path}]"
	afterScheme := strings.TrimPrefix(rest, "tinycloud:")
	slash := strings.IndexByte(afterScheme, '/')
	if slash < 0 {
		return ResourceID{}, fmt.Errorf("resource missing /service segment: %q", raw)
	}
	spaceSuffix := afterScheme[:slash]
	tail := afterScheme[slash+1:]

	space := SpaceID("tinycloud:" + spaceSuffix)
	if _, err := ParseSpaceID(string(space)); err != nil {
		return ResourceID{}, fmt.Errorf("invalid space in resource %q: %w", raw, err)
	}

	var service, path string
	if i := strings.IndexByte(tail, '/'); i >= 0 {
		service = tail[:i]
		path = tail[i+1:]
	} else {
		service = tail
	}
	if service == "" {
		return ResourceID{}, fmt.Errorf("resource missing service: %q", raw)
	}

	return ResourceID{
		Space:    space,
		Service:  service,
		Path:     path,
		Query:    query,
		Fragment: fragment,
	}, nil
}

// String renders the canonical form of the resource identifier.
func (r ResourceID) String() string {
	var b strings.Builder
	b.WriteString(string(r.Space))
	b.WriteByte('/')
	b.WriteString(r.Service)
	if r.Path != "" {
		b.WriteByte('/')
		b.WriteString(r.Path)
	}
	if r.Query != "" {
		b.WriteByte('?')
		b.WriteString(r.Query)
	}
	if r.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(r.Fragment)
	}
	return b.String()
}

// Ability is a capability verb, "{namespace}/{action}", e.g.
// "tinycloud.kv/put".
type Ability string

// Namespace returns the part before the "/".
func (a Ability) Namespace() string {
	if i := strings.IndexByte(string(a), '/'); i >= 0 {
		return string(a)[:i]
	}
	return string(a)
}

// Action returns the part after the "/".
func (a Ability) Action() string {
	if i := strings.IndexByte(string(a), '/'); i >= 0 {
		return string(a)[i+1:]
	}
	return ""
}

const TinyCloudNamespacePrefix = "tinycloud."

// IsTinyCloud reports whether the ability is in the tinycloud.* namespace
// the KV executor and capabilities query care about (spec.md §4.3).
func (a Ability) IsTinyCloud() bool {
	return strings.HasPrefix(string(a), TinyCloudNamespacePrefix)
}

// Well-known abilities.
const (
	AbilitySpaceHost        Ability = "tinycloud.space/host"
	AbilityKVGet            Ability = "tinycloud.kv/get"
	AbilityKVPut            Ability = "tinycloud.kv/put"
	AbilityKVDel            Ability = "tinycloud.kv/del"
	AbilityKVList           Ability = "tinycloud.kv/list"
	AbilityKVMetadata       Ability = "tinycloud.kv/metadata"
	AbilityCapabilitiesRead Ability = "tinycloud.capabilities/read"
	AbilitySQLRead          Ability = "tinycloud.sql/read"
	AbilitySQLWrite         Ability = "tinycloud.sql/write"
	AbilitySQLAdmin         Ability = "tinycloud.sql/admin"
	AbilitySQLWildcard      Ability = "tinycloud.sql/*"

	// AbilityRevocationRevoke marks the single-capability shape a
	// revocation is submitted to POST /delegate as, per the §9 Open
	// Question decision recorded in DESIGN.md: resource "urn:cid:{cid}",
	// this ability, nothing else in the capability set.
	AbilityRevocationRevoke Ability = "tinycloud.revocation/revoke"
)

// RevokedCIDPrefix prefixes the opaque resource URI a revocation names.
const RevokedCIDPrefix = "urn:cid:"

// Capability is a (resource, ability) pair — spec.md §3.
type Capability struct {
	Resource ResourceID
	Ability  Ability
	// Opaque is set when Resource could not be parsed as a structured
	// tinycloud resource (e.g. a ReCap capability outside the tinycloud.*
	// namespace). OpaqueResource then holds the raw resource string and
	// Resource is the zero value.
	Opaque         bool
	OpaqueResource string
}

func (c Capability) String() string {
	if c.Opaque {
		return fmt.Sprintf("%s %s", c.OpaqueResource, c.Ability)
	}
	return fmt.Sprintf("%s %s", c.Resource.String(), c.Ability)
}
