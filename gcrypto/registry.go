package gcrypto

import (
	"bytes"
	"fmt"
	"reflect"
)

const registryPrefixLen = 8

// Registry maps short type names to public key decoders,
// so that keys of any registered type can travel as opaque bytes,
// for instance in pool configuration files.
//
// The zero value is ready to use.
type Registry struct {
	byPrefix map[string]newPubKeyFunc
	byType   map[reflect.Type]string
}

type newPubKeyFunc func([]byte) (PubKey, error)

// Register associates name with the concrete type of example.
// Name must be at most 8 bytes; Register panics otherwise,
// or if the name or type are already registered.
func (r *Registry) Register(name string, example PubKey, newFn func([]byte) (PubKey, error)) {
	if len(name) == 0 || len(name) > registryPrefixLen {
		panic(fmt.Errorf("registry name %q must be 1-%d bytes", name, registryPrefixLen))
	}

	if r.byPrefix == nil {
		r.byPrefix = make(map[string]newPubKeyFunc)
		r.byType = make(map[reflect.Type]string)
	}

	if _, ok := r.byPrefix[name]; ok {
		panic(fmt.Errorf("registry name %q already registered", name))
	}

	t := reflect.TypeOf(example)
	if _, ok := r.byType[t]; ok {
		panic(fmt.Errorf("registry type %v already registered", t))
	}

	r.byPrefix[name] = newFn
	r.byType[t] = name
}

// Marshal returns the zero-padded type prefix followed by the key bytes.
// Marshal panics if the key's type was never registered.
func (r *Registry) Marshal(pubKey PubKey) []byte {
	name, ok := r.byType[reflect.TypeOf(pubKey)]
	if !ok {
		panic(fmt.Errorf("no registered name for public key type %T", pubKey))
	}

	keyBytes := pubKey.PubKeyBytes()
	out := make([]byte, registryPrefixLen, registryPrefixLen+len(keyBytes))
	copy(out, name)
	return append(out, keyBytes...)
}

// Unmarshal decodes a key produced by [*Registry.Marshal].
func (r *Registry) Unmarshal(b []byte) (PubKey, error) {
	if len(b) < registryPrefixLen {
		return nil, fmt.Errorf("public key too short: %d bytes", len(b))
	}

	prefix := string(bytes.TrimRight(b[:registryPrefixLen], "\x00"))
	newFn, ok := r.byPrefix[prefix]
	if !ok {
		return nil, fmt.Errorf("no registered public key type for prefix %q", prefix)
	}

	return newFn(b[registryPrefixLen:])
}
