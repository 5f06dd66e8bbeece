package labgob

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type SampleArgs struct {
	Key   string
	Value string
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(SampleArgs{Key: "k", Value: "v"}))

	dec := NewDecoder(&buf)
	var out SampleArgs
	require.NoError(t, dec.Decode(&out))
	assert.Equal(t, "k", out.Key)
	assert.Equal(t, "v", out.Value)
}

func TestRegisterAcceptsInterfaceValues(t *testing.T) {
	assert.NotPanics(t, func() {
		Register(SampleArgs{})
	})
}
