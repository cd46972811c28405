package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/esdm-project/esdm-go/dataspace"
	"github.com/esdm-project/esdm-go/fragment"
)

func TestStorageKeyDistinguishesDatasets(t *testing.T) {
	space := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{10}, Type: dataspace.Uint8}
	assert.NotEqual(t, StorageKey("a", space), StorageKey("b", space))
}

func TestStorageKeyDistinguishesExtents(t *testing.T) {
	a := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{10}, Type: dataspace.Uint8}
	b := dataspace.Dataspace{Offset: []int64{10}, Size: []int64{10}, Type: dataspace.Uint8}
	assert.NotEqual(t, StorageKey("ds", a), StorageKey("ds", b))
}

func TestStorageKeyConcatenationIsNotAmbiguous(t *testing.T) {
	// "a"+"bc" and "ab"+"c" must not collide once the dataset/offset split
	// is folded into one byte string.
	a := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{99}, Type: dataspace.Uint8}
	assert.NotEqual(t, StorageKey("a", a), StorageKey("ab", a))
}

func TestRegisterAssignsIncreasingSeq(t *testing.T) {
	c := NewMem().(*memCatalog)
	space := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{10}, Type: dataspace.Uint8}

	require := func(seq int64) fragment.Descriptor {
		d := fragment.Descriptor{Dataset: "ds", Space: space, Backend: "a"}
		assert.NoError(t, c.Register("ds", d))
		return d
	}
	require(0)
	require(0)

	got, err := c.Lookup("ds", space)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.ElementsMatch(t, []int64{1, 2}, []int64{got[0].Seq, got[1].Seq})
}

func TestLookupOnlyReturnsIntersecting(t *testing.T) {
	c := NewMem()
	left := dataspace.Dataspace{Offset: []int64{0}, Size: []int64{10}, Type: dataspace.Uint8}
	right := dataspace.Dataspace{Offset: []int64{100}, Size: []int64{10}, Type: dataspace.Uint8}
	assert.NoError(t, c.Register("ds", fragment.Descriptor{Dataset: "ds", Space: left, Backend: "a"}))
	assert.NoError(t, c.Register("ds", fragment.Descriptor{Dataset: "ds", Space: right, Backend: "a"}))

	got, err := c.Lookup("ds", left)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, left, got[0].Space)
}

func TestFillValueRoundTrip(t *testing.T) {
	c := NewMem()
	_, ok := c.FillValue("ds")
	assert.False(t, ok)

	c.SetFillValue("ds", int32(-1))
	v, ok := c.FillValue("ds")
	assert.True(t, ok)
	assert.Equal(t, int32(-1), v)
}
