package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/textmoor/textmoor/pkg/world"
)

func init() {
	gob.Register(world.Entity{})
}

// encodeEntity serializes an Entity to bytes using gob.
func encodeEntity(e *world.Entity) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEntity deserializes bytes back into an Entity.
func decodeEntity(data []byte) (*world.Entity, error) {
	var e world.Entity
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}
