package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-layout/pkg/force"
)

func bigRequest(n int) Request {
	nodes := make([]force.NodeSpec, n)
	for i := range nodes {
		nodes[i] = force.NodeSpec{ID: fmt.Sprintf("node-%04d", i)}
	}
	return NewRequest("forceDirected2d", nodes, nil, force.DefaultConfig())
}

func TestCodecCompressesLargeFrames(t *testing.T) {
	codec := Codec{CompressThreshold: 512}

	small, err := newMessage(MsgCalculateLayout, "small", bigRequest(2))
	require.NoError(t, err)
	frame, err := codec.Encode(small)
	require.NoError(t, err)
	assert.Equal(t, frameRaw, frame[0])

	large, err := newMessage(MsgCalculateLayout, "large", bigRequest(500))
	require.NoError(t, err)
	frame, err = codec.Encode(large)
	require.NoError(t, err)
	assert.Equal(t, frameSnappy, frame[0])

	decoded, err := codec.Decode(frame)
	require.NoError(t, err)
	req, err := decoded.DecodeRequest()
	require.NoError(t, err)
	assert.Equal(t, "large", req.ID)
	assert.Len(t, req.Nodes, 500)
	assert.Equal(t, force.DefaultConfig(), req.Config())
}

func TestCodecRejectsBadFrames(t *testing.T) {
	codec := Codec{}

	for name, frame := range map[string][]byte{
		"empty":        nil,
		"flag only":    {frameRaw},
		"unknown flag": {0x7f, '{', '}'},
		"bad snappy":   {frameSnappy, 0xff, 0xff, 0xff},
		"bad json":     {frameRaw, 'n', 'o'},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decode(frame)
			assert.True(t, errors.Is(err, ErrBadFrame), "got %v", err)
		})
	}
}

func TestRequestCarriesPins(t *testing.T) {
	x, y := 3.0, 4.0
	nodes := []force.NodeSpec{{ID: "a", Pin: force.Pin{X: &x, Y: &y}}, {ID: "b"}}
	cfg := force.DefaultConfig()
	cfg.Is3D = true

	msg, err := newMessage(MsgCalculateLayout, "pins", NewRequest("forceDirected3d", nodes, nil, cfg))
	require.NoError(t, err)
	frame, err := Codec{}.Encode(msg)
	require.NoError(t, err)
	decoded, err := Codec{}.Decode(frame)
	require.NoError(t, err)
	req, err := decoded.DecodeRequest()
	require.NoError(t, err)

	require.NotNil(t, req.Nodes[0].Pin.X)
	assert.Equal(t, 3.0, *req.Nodes[0].Pin.X)
	assert.Nil(t, req.Nodes[0].Pin.Z)
	assert.True(t, req.Nodes[1].Pin.IsZero())
	assert.Equal(t, 3, req.Dimensions)
	assert.True(t, req.Config().Is3D)
}
