package canonical

import (
	"context"
	"fmt"
	"time"

	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
)

const maxSuffix = 99

// Store reports whether a canonical ID is already taken, across both
// individual and organization namespaces.
type Store interface {
	Exists(ctx context.Context, id domain.CanonicalID) (bool, error)
}

// Allocator turns a derived base ID into a unique one by probing the
// store and appending a numeric suffix on collision.
type Allocator struct {
	store Store
	now   func() time.Time
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store, now: time.Now}
}

// Allocate returns base unchanged when it is free, otherwise the first
// free candidate among base01..base99, and finally a time-derived
// three-digit fallback. The returned ID is not reserved: callers claim
// it by inserting and must re-allocate when the insert loses a race.
func (a *Allocator) Allocate(ctx context.Context, base domain.CanonicalID) (domain.CanonicalID, error) {
	taken, err := a.store.Exists(ctx, base)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "probe canonical id")
	}
	if !taken {
		return base, nil
	}
	for suffix := 1; suffix <= maxSuffix; suffix++ {
		candidate := withSuffix(base, fmt.Sprintf("%02d", suffix))
		taken, err := a.store.Exists(ctx, candidate)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "probe canonical id")
		}
		if !taken {
			return candidate, nil
		}
	}
	// The suffix space is exhausted; derive a candidate from the clock
	// so that two near-simultaneous registrants still diverge.
	fallback := withSuffix(base, fmt.Sprintf("%03d", a.now().UnixNano()%1000))
	taken, err = a.store.Exists(ctx, fallback)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "probe canonical id")
	}
	if taken {
		return "", dErrors.New(dErrors.CodeConflict, "canonical id space exhausted for base "+base.String())
	}
	return fallback, nil
}

// withSuffix appends a numeric suffix, trimming the base body when the
// combination would overflow the format's upper bound. The suffixed ID
// stays parseable at every trust boundary.
func withSuffix(base domain.CanonicalID, suffix string) domain.CanonicalID {
	body := base.Body()
	if over := len(body) + len(suffix) - domain.MaxBodyLen; over > 0 {
		body = body[:len(body)-over]
	}
	if base.IsOrg() {
		return domain.CanonicalID(domain.OrgPrefix + body + suffix)
	}
	return domain.CanonicalID(body + suffix)
}
