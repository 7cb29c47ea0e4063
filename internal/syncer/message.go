package syncer

import (
	"context"
	"fmt"

	"github.com/urbanpack/offsync/internal/partition"
)

// Message type tags of the page⇄worker protocol.
const (
	TypeAtomicEntitySync = "ATOMIC_ENTITY_SYNC"
	TypeGatedRelease     = "GATED_RELEASE"
	TypeCacheEntity      = "CACHE_ENTITY"
	TypePrecacheImages   = "PRECACHE_IMAGES"
	TypeForgetEntity     = "FORGET_ENTITY"
)

// Message is the wire shape of one sync request. RequestID is optional; when
// present it is echoed on the Outcome so a page can pair replies with
// requests over a shared connection.
type Message struct {
	Type      string   `json:"type"`
	RequestID string   `json:"requestId,omitempty"`
	EntityID  string   `json:"entityId,omitempty"`
	Assets    []string `json:"assets,omitempty"`
	Images    []string `json:"images,omitempty"`
}

// Outcome is the single reply every message produces.
type Outcome struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// operation is one decoded message variant. The loose wire shape is turned
// into a variant with its required fields validated up front, so handlers
// never re-check payload shape.
type operation interface {
	run(ctx context.Context, o *Orchestrator) error
}

type atomicEntitySync struct {
	entityID string
}

type gatedRelease struct {
	entityID string
	assets   []string
	images   []string
}

type cacheEntity struct {
	entityID string
}

type precacheImages struct {
	images []string
}

type forgetEntity struct {
	entityID string
}

// requireEntityID validates a message's entity ID. Reserved slot names are
// rejected here so a page can never name a partition the activation sweep
// would mistake for a stale shell-scoped one.
func requireEntityID(msg Message) error {
	if msg.EntityID == "" {
		return fmt.Errorf("%s requires entityId", msg.Type)
	}
	if partition.IsReservedSlot(msg.EntityID) {
		return fmt.Errorf("entityId %q is a reserved partition name", msg.EntityID)
	}
	return nil
}

// decode validates a wire message into its operation variant.
func decode(msg Message) (operation, error) {
	switch msg.Type {
	case TypeAtomicEntitySync:
		if err := requireEntityID(msg); err != nil {
			return nil, err
		}
		return &atomicEntitySync{entityID: msg.EntityID}, nil
	case TypeGatedRelease:
		if msg.EntityID != "" && partition.IsReservedSlot(msg.EntityID) {
			return nil, fmt.Errorf("entityId %q is a reserved partition name", msg.EntityID)
		}
		return &gatedRelease{entityID: msg.EntityID, assets: msg.Assets, images: msg.Images}, nil
	case TypeCacheEntity:
		if err := requireEntityID(msg); err != nil {
			return nil, err
		}
		return &cacheEntity{entityID: msg.EntityID}, nil
	case TypePrecacheImages:
		if len(msg.Images) == 0 {
			return nil, fmt.Errorf("%s requires a non-empty images list", msg.Type)
		}
		return &precacheImages{images: msg.Images}, nil
	case TypeForgetEntity:
		if err := requireEntityID(msg); err != nil {
			return nil, err
		}
		return &forgetEntity{entityID: msg.EntityID}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}
