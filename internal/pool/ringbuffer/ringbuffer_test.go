package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPut(t *testing.T) {
	var p Pool
	b := p.Get()
	_, _ = b.Write([]byte("partial frame"))
	p.Put(b)

	b = p.Get()
	assert.True(t, b.IsEmpty())
	assert.Equal(t, 0, b.Buffered())
}

func TestIndex(t *testing.T) {
	assert.Equal(t, 0, index(0))
	assert.Equal(t, 0, index(64))
	assert.Equal(t, 1, index(65))
	assert.Equal(t, 4, index(1024))
	assert.Equal(t, steps-1, index(1<<40))
}

func TestCalibrate(t *testing.T) {
	var p Pool
	for i := 0; i < calibrateCallsThreshold+1; i++ {
		b := Get()
		_, _ = b.Write(make([]byte, 1024))
		p.Put(b)
	}
	assert.Equal(t, uint64(1024), p.defaultSize)
}
