package eventlog

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// opDoc is the dag-cbor preimage of one KV operation's hash, tagged by op
// so a put and a del on the same key never collide.
type opDoc struct {
	Key   string `cbor:"key"`
	Op    string `cbor:"op"`
	Value []byte `cbor:"value,omitempty"`
	Seq   uint64 `cbor:"seq,omitempty"`
	Epoch []byte `cbor:"epoch,omitempty"`
	EPSeq uint64 `cbor:"epoch_seq,omitempty"`
}

// PutOpHash computes the op hash for a kv/put of value under key — spec.md
// §3's "the blob's CID-from-hash (put)".
func PutOpHash(key string, value tctypes.Hash) (tctypes.Hash, error) {
	valueCID, err := value.CID(tctypes.CodecRaw)
	if err != nil {
		return tctypes.Hash{}, tcerr.Wrap(tcerr.EncodingError, err, "build put op value cid")
	}
	doc := opDoc{Key: key, Op: "put", Value: valueCID.Bytes()}
	raw, err := cbor.Marshal(doc)
	if err != nil {
		return tctypes.Hash{}, tcerr.Wrap(tcerr.EncodingError, err, "cbor-encode put op")
	}
	return tctypes.SumBlake3(raw), nil
}

// DelOpHash computes the op hash for a kv/del of key, committing to the
// version being removed — spec.md §3's "version tuple (del)".
func DelOpHash(key string, deleted tctypes.Position) (tctypes.Hash, error) {
	doc := opDoc{
		Key:   key,
		Op:    "del",
		Seq:   deleted.Seq,
		Epoch: deleted.Epoch.Bytes(),
		EPSeq: deleted.EpochSeq,
	}
	raw, err := cbor.Marshal(doc)
	if err != nil {
		return tctypes.Hash{}, tcerr.Wrap(tcerr.EncodingError, err, "cbor-encode del op")
	}
	return tctypes.SumBlake3(raw), nil
}
