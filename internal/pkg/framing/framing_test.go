package framing

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneByteReader delivers the underlying data a single byte per Read call,
// simulating a peer that trickles a line across many segments.
type oneByteReader struct {
	data string
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

func TestReadLineCoalesced(t *testing.T) {
	f := NewLineFramer(strings.NewReader("PING 1\r\nPING 2 a=b\r\n"))

	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PING 1", line)

	line, err = f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PING 2 a=b", line)

	_, err = f.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestReadLineByteAtATime(t *testing.T) {
	f := NewLineFramer(&oneByteReader{data: "HELLO 7 key=value\r\n"})

	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "HELLO 7 key=value", line)
}

func TestReadLineEmptyLines(t *testing.T) {
	f := NewLineFramer(strings.NewReader("\r\nPING 1\r\n"))

	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "", line)

	line, err = f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "PING 1", line)
}

func TestReadLineEOFMidLine(t *testing.T) {
	f := NewLineFramer(strings.NewReader("PING 1"))

	_, err := f.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestReadLineBareCRIsNotTerminator(t *testing.T) {
	f := NewLineFramer(strings.NewReader("a\rb\r\n"))

	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "a\rb", line)
}

func TestReadLineTooLong(t *testing.T) {
	f := NewLineFramer(strings.NewReader(strings.Repeat("a", MaxLineBytes+1)))

	_, err := f.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLineLongButTerminated(t *testing.T) {
	payload := strings.Repeat("a", 10_000)
	f := NewLineFramer(strings.NewReader(payload + "\r\n"))

	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, payload, line)
}
