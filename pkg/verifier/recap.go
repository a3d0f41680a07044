package verifier

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/capability"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// recapPrefix marks the single SIWE resource entry that carries an
// encoded ReCap attenuation object (https://eips.ethereum.org/EIPS/eip-5573).
const recapPrefix = "urn:recap:"

// recapDocument mirrors the "att" shape a UCAN carries, reused here
// because ReCap's encoding is the same {resource: {ability: [caveats]}}
// structure base64url-encoded as a single SIWE resource.
type recapDocument struct {
	Att map[string]map[string][]json.RawMessage `json:"att"`
}

// ExtractReCap scans a SIWE resource list for a "urn:recap:" entry and
// unfolds its attenuation object into capabilities, per spec.md §4.3.
// Resource lists without a ReCap entry yield an empty, non-error result —
// ReCap is optional on every CACAO.
func ExtractReCap(resources []string) ([]tctypes.Capability, error) {
	for _, r := range resources {
		if !strings.HasPrefix(r, recapPrefix) {
			continue
		}
		encoded := strings.TrimPrefix(r, recapPrefix)
		raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
		if err != nil {
			raw, err = base64.URLEncoding.DecodeString(encoded)
			if err != nil {
				return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "base64url-decode ReCap resource")
			}
		}
		var doc recapDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "json-decode ReCap document")
		}

		var caps []tctypes.Capability
		for resourceURI, abilities := range doc.Att {
			for ability := range abilities {
				caps = append(caps, capability.FromURI(resourceURI, tctypes.Ability(ability)))
			}
		}
		return caps, nil
	}
	return nil, nil
}

// prfResourcePrefix marks a SIWE resource entry carrying one parent
// delegation CID, TinyCloud's CACAO equivalent of a UCAN "prf" entry
// (ReCap has no native proof-chain convention, so this is the server's
// own extension to the resources list).
const prfResourcePrefix = "urn:tinycloud:prf:"

// ExtractParents scans a SIWE resource list for "urn:tinycloud:prf:"
// entries and parses each as a parent delegation CID.
func ExtractParents(resources []string) ([]tctypes.Hash, error) {
	var parents []tctypes.Hash
	for _, r := range resources {
		if !strings.HasPrefix(r, prfResourcePrefix) {
			continue
		}
		cidStr := strings.TrimPrefix(r, prfResourcePrefix)
		hash, err := tctypes.ParseHash(cidStr)
		if err != nil {
			return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "parse CACAO parent CID")
		}
		parents = append(parents, hash)
	}
	return parents, nil
}
