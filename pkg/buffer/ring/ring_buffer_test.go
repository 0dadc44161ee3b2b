package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadWrapAround(t *testing.T) {
	rb := New(8)
	assert.Equal(t, 8, rb.Cap())
	assert.True(t, rb.IsEmpty())

	_, _ = rb.Write([]byte("abcdef"))
	got, err := rb.ReadN(4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))

	// 写指针越过尾部后回绕。
	_, _ = rb.Write([]byte("ghij"))
	assert.Equal(t, 6, rb.Buffered())
	head, tail := rb.Peek(6)
	assert.Equal(t, "efghij", string(head)+string(tail))
	assert.NotEmpty(t, tail)
	assert.Equal(t, "efghij", string(rb.Bytes()))

	got, err = rb.ReadN(6)
	require.NoError(t, err)
	assert.Equal(t, "efghij", string(got))
	assert.True(t, rb.IsEmpty())
}

func TestReadNShort(t *testing.T) {
	rb := New(4)
	_, _ = rb.Write([]byte("ab"))
	_, err := rb.ReadN(3)
	assert.ErrorIs(t, err, ErrShortBuffer)
	assert.Equal(t, 2, rb.Buffered())

	_, err = New(0).Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrIsEmpty)
}

func TestGrow(t *testing.T) {
	rb := New(0)
	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, _ = rb.Write(payload)
	assert.GreaterOrEqual(t, rb.Cap(), 3000)
	assert.Equal(t, payload, rb.Bytes())
}

func TestDiscard(t *testing.T) {
	rb := New(16)
	_, _ = rb.Write([]byte("hello world"))
	n, err := rb.Discard(6)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "world", string(rb.Bytes()))

	n, _ = rb.Discard(100)
	assert.Equal(t, 5, n)
	assert.True(t, rb.IsEmpty())
	assert.Equal(t, 16, rb.Available())
}
