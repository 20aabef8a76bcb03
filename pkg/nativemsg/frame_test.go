package nativemsg

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/kernel/rally/pkg/rally"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := newMessage(t, rally.TypePause, nil)
	in := Frame{ID: 7, Kind: KindMessage, Channel: rally.ChannelCompanion, Message: &msg}

	require.NoError(t, WriteFrame(&buf, in))
	assert.Equal(t, uint32(buf.Len()-4), binary.NativeEndian.Uint32(buf.Bytes()[:4]))

	var out Frame
	require.NoError(t, ReadFrame(&buf, &out))
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.Channel, out.Channel)
	require.NotNil(t, out.Message)
	assert.Equal(t, rally.TypePause, out.Message.Type)

	assert.ErrorIs(t, ReadFrame(&buf, &out), io.EOF)
}

func TestReadFrameErrors(t *testing.T) {
	header := func(n uint32) []byte {
		b := make([]byte, 4)
		binary.NativeEndian.PutUint32(b, n)
		return b
	}

	tests := []struct {
		name   string
		input  []byte
		isEOF  bool
		tooBig bool
	}{
		{name: "empty input", input: nil, isEOF: true},
		{name: "short header", input: []byte{1, 0}},
		{name: "short body", input: append(header(10), []byte(`{"id"`)...)},
		{name: "oversize", input: header(MaxFrameSize + 1), tooBig: true},
		{name: "not json", input: append(header(3), []byte("abc")...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Frame
			err := ReadFrame(bytes.NewReader(tt.input), &f)
			require.Error(t, err)
			if tt.isEOF {
				assert.Equal(t, io.EOF, err)
			} else {
				assert.NotEqual(t, io.EOF, err)
			}
			if tt.tooBig {
				assert.ErrorIs(t, err, ErrFrameTooLarge)
			}
		})
	}
}

func TestWriteFrameRejectsUnencodable(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteFrame(&buf, make(chan int)))
	assert.Zero(t, buf.Len())
}
