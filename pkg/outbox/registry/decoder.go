package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/storyblok-sync/pkg/enums"
)

// ErrNoDecoder is returned for an event type and version nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

// Decoder turns envelope data into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

// DecoderRegistry holds payload decoders per event type and envelope version,
// so consumers can keep reading old envelopes after a payload change.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[enums.OutboxEventType]map[int]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[enums.OutboxEventType]map[int]Decoder{}}
}

// NewSyncDecoders registers the v1 decoder of every catalog event.
func NewSyncDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	for _, d := range catalog {
		reg.Register(d.EventType, 1, d.decode)
	}
	return reg
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decode Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.decoders[eventType]
	if !ok {
		versions = map[int]Decoder{}
		r.decoders[eventType] = versions
	}
	versions[version] = decode
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decode := r.decoders[eventType][version]
	r.mu.RUnlock()
	if decode == nil {
		return nil, fmt.Errorf("%w for %s v%d", ErrNoDecoder, eventType, version)
	}
	return decode(data)
}
