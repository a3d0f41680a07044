/*
Package capability implements the pure attenuation rule of spec.md §4.2:
deciding whether one capability extends (authorizes) another. It has no
I/O and no dependency on the verifier, delegation validator, or storage —
every other component that needs "does c1 extend c2" calls Extends.
*/
package capability

import (
	"strings"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// Extends reports whether child is authorized by parent: same space, same
// service, same fragment, child's path has parent's path as a prefix
// (empty parent path = wildcard), and equal ability. Opaque capabilities
// (resource URIs that didn't parse as structured tinycloud resources)
// never extend or are extended by anything — spec.md §4.2 "any mismatch
// yields does not extend".
func Extends(child, parent tctypes.Capability) bool {
	if child.Opaque || parent.Opaque {
		return false
	}
	if child.Ability != parent.Ability {
		return false
	}
	c, p := child.Resource, parent.Resource
	if c.Space != p.Space {
		return false
	}
	if c.Service != p.Service {
		return false
	}
	if c.Fragment != p.Fragment {
		return false
	}
	return pathContains(p.Path, c.Path)
}

// pathContains reports whether childPath is within parentPath: an empty
// parentPath is a wildcard matching any childPath, otherwise childPath
// must equal parentPath or have it as a "/"-delimited prefix.
func pathContains(parentPath, childPath string) bool {
	if parentPath == "" {
		return true
	}
	if childPath == parentPath {
		return true
	}
	return strings.HasPrefix(childPath, parentPath+"/")
}

// ExtendsAny reports whether some capability in parents extends child.
func ExtendsAny(child tctypes.Capability, parents []tctypes.Capability) bool {
	for _, p := range parents {
		if Extends(child, p) {
			return true
		}
	}
	return false
}

// RootDID returns the owner DID of a capability's resource — the DID a
// capability is "self-rooted" against (spec.md §4.4 step 1). Opaque
// capabilities have no resolvable root.
func RootDID(c tctypes.Capability) (tctypes.DID, bool) {
	if c.Opaque {
		return "", false
	}
	return c.Resource.Space.OwnerDID(), true
}

// IsSelfRooted reports whether delegator is the root DID of c's resource,
// comparing with fragments stripped per spec.md §4.4's DID normalization.
func IsSelfRooted(c tctypes.Capability, delegator tctypes.DID) bool {
	root, ok := RootDID(c)
	if !ok {
		return false
	}
	return root.WithoutFragment() == delegator.WithoutFragment()
}

// FromURI builds a Capability for a resource URI and ability, tagging the
// capability Opaque if the URI doesn't parse as a structured tinycloud
// resource (e.g. non-tinycloud ReCap resources carried for completeness —
// spec.md §4.3).
func FromURI(uri string, ability tctypes.Ability) tctypes.Capability {
	res, err := tctypes.ParseResource(uri)
	if err != nil {
		return tctypes.Capability{Opaque: true, OpaqueResource: uri, Ability: ability}
	}
	return tctypes.Capability{Resource: res, Ability: ability}
}

// IsSpaceHostGrant reports whether c is a self-rooted grant of
// tinycloud.space/host on a bare space resource (no path/query/fragment),
// the only capability shape that lazily creates a space — spec.md §4.5.
func IsSpaceHostGrant(c tctypes.Capability) bool {
	if c.Opaque {
		return false
	}
	return c.Ability == tctypes.AbilitySpaceHost &&
		c.Resource.Service == tctypes.ServiceSpace &&
		c.Resource.Path == "" &&
		c.Resource.Query == "" &&
		c.Resource.Fragment == ""
}
