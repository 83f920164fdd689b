package bitfield_test

import (
	"testing"

	"github.com/kaal-project/kaal/internal/bitfield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rights struct {
	Read  bool   `bitfield:"1"`
	Write bool   `bitfield:"1"`
	Grant bool   `bitfield:"1"`
	_     uint64 `bitfield:"0"`
}

func TestPackUnpackRoundTrip(t *testing.T) {
	in := rights{Read: true, Grant: true}
	packed, err := bitfield.Pack(&in, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b101), packed)

	var out rights
	require.NoError(t, bitfield.Unpack(packed, &out))
	assert.Equal(t, in, out)
}

func TestPackOverflow(t *testing.T) {
	type small struct {
		V uint8 `bitfield:"2"`
	}
	_, err := bitfield.Pack(&small{V: 7}, nil)
	assert.Error(t, err)
}

func TestPackExceedsNumBits(t *testing.T) {
	type wide struct {
		A uint8 `bitfield:"4"`
		B uint8 `bitfield:"4"`
	}
	_, err := bitfield.Pack(&wide{A: 1, B: 1}, &bitfield.Config{NumBits: 4})
	assert.Error(t, err)
}
