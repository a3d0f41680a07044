package codec

import (
	"encoding/json"
	"strings"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/capability"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// Decoded is the result of Decode: exactly one of UCAN/CACAO is set,
// matching Format. Bytes is the canonical hash preimage (spec.md §6).
type Decoded struct {
	Format tctypes.CredentialFormat
	UCAN   *UCANEnvelope
	CACAO  *CACAOEnvelope
	Bytes  []byte
}

// Decode picks a format by the presence of "." (UCAN JWTs are three
// dot-separated base64url segments; CACAO's base64url alphabet never
// produces a ".") and decodes accordingly — spec.md §4.1.
func Decode(raw string) (*Decoded, error) {
	if strings.Contains(raw, ".") {
		env, err := DecodeUCAN(raw)
		if err != nil {
			return nil, err
		}
		return &Decoded{Format: tctypes.FormatUCAN, UCAN: env, Bytes: []byte(raw)}, nil
	}
	env, err := DecodeCACAO(raw)
	if err != nil {
		return nil, err
	}
	return &Decoded{Format: tctypes.FormatCACAO, CACAO: env, Bytes: env.Bytes}, nil
}

// AttToCapabilities lowers a UCAN "att" claim into the uniform capability
// list. Each resource URI that fails to parse as a structured tinycloud
// resource is kept as an opaque capability (spec.md §4.2).
func AttToCapabilities(att map[string]map[string][]json.RawMessage) []tctypes.Capability {
	var caps []tctypes.Capability
	for resourceURI, abilities := range att {
		for ability := range abilities {
			caps = append(caps, capability.FromURI(resourceURI, tctypes.Ability(ability)))
		}
	}
	return caps
}
