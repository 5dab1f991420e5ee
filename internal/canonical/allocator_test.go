package canonical

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
)

type fakeStore struct {
	taken map[domain.CanonicalID]bool
	err   error
}

func (f *fakeStore) Exists(_ context.Context, id domain.CanonicalID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.taken[id], nil
}

func TestAllocatorReturnsBaseWhenFree(t *testing.T) {
	alloc := NewAllocator(&fakeStore{taken: map[domain.CanonicalID]bool{}})

	got, err := alloc.Allocate(context.Background(), "JDOE5309EXA")
	require.NoError(t, err)
	assert.Equal(t, domain.CanonicalID("JDOE5309EXA"), got)
}

func TestAllocatorAppendsSuffixOnCollision(t *testing.T) {
	store := &fakeStore{taken: map[domain.CanonicalID]bool{
		"JDOE5309EXA":   true,
		"JDOE5309EXA01": true,
		"JDOE5309EXA02": true,
	}}
	alloc := NewAllocator(store)

	got, err := alloc.Allocate(context.Background(), "JDOE5309EXA")
	require.NoError(t, err)
	assert.Equal(t, domain.CanonicalID("JDOE5309EXA03"), got)
}

func TestAllocatorSuffixKeepsFormatWhenBaseIsFullWidth(t *testing.T) {
	store := &fakeStore{taken: map[domain.CanonicalID]bool{
		"PFEATHERS0007EXA": true,
	}}
	alloc := NewAllocator(store)

	got, err := alloc.Allocate(context.Background(), "PFEATHERS0007EXA")
	require.NoError(t, err)
	assert.Equal(t, domain.CanonicalID("PFEATHERS0007E01"), got)

	_, err = domain.ParseCanonicalID(got.String())
	require.NoError(t, err)
}

func TestAllocatorSuffixPreservesOrgPrefix(t *testing.T) {
	store := &fakeStore{taken: map[domain.CanonicalID]bool{
		"ORG-ACMEWIDGE5432ACM": true,
	}}
	alloc := NewAllocator(store)

	got, err := alloc.Allocate(context.Background(), "ORG-ACMEWIDGE5432ACM")
	require.NoError(t, err)
	assert.Equal(t, domain.CanonicalID("ORG-ACMEWIDGE5432A01"), got)
	assert.True(t, got.IsOrg())
}

func TestAllocatorTimeFallbackWhenSuffixesExhausted(t *testing.T) {
	taken := map[domain.CanonicalID]bool{"BRAY0001XYX": true}
	for i := 1; i <= 99; i++ {
		taken[domain.CanonicalID(fmt.Sprintf("BRAY0001XYX%02d", i))] = true
	}
	alloc := NewAllocator(&fakeStore{taken: taken})
	alloc.now = func() time.Time { return time.Unix(0, 7) }

	got, err := alloc.Allocate(context.Background(), "BRAY0001XYX")
	require.NoError(t, err)
	assert.Equal(t, domain.CanonicalID("BRAY0001XYX007"), got)
}

func TestAllocatorConflictWhenFallbackTaken(t *testing.T) {
	taken := map[domain.CanonicalID]bool{"BRAY0001XYX": true, "BRAY0001XYX007": true}
	for i := 1; i <= 99; i++ {
		taken[domain.CanonicalID(fmt.Sprintf("BRAY0001XYX%02d", i))] = true
	}
	alloc := NewAllocator(&fakeStore{taken: taken})
	alloc.now = func() time.Time { return time.Unix(0, 7) }

	_, err := alloc.Allocate(context.Background(), "BRAY0001XYX")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestAllocatorPropagatesStoreError(t *testing.T) {
	alloc := NewAllocator(&fakeStore{err: errors.New("db down")})

	_, err := alloc.Allocate(context.Background(), "JDOE5309EXA")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}
