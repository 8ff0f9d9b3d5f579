package field

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendMonotonic(t *testing.T) {
	buf := NewBuffer()

	for k := 0; k < 50; k++ {
		before := buf.Len()
		buf.Append(fmt.Sprintf("text-%d", k), []float64{float64(k)})
		assert.Equal(t, before+1, buf.Len())
	}
}

func TestShouldProjectThreshold(t *testing.T) {
	buf := NewBuffer()

	assert.False(t, buf.ShouldProject(), "empty buffer")

	buf.Append("a", []float64{1})
	assert.False(t, buf.ShouldProject(), "length 1")

	buf.Append("b", []float64{2})
	assert.False(t, buf.ShouldProject(), "length 2")

	buf.Append("c", []float64{3})
	assert.True(t, buf.ShouldProject(), "length 3")

	buf.Append("d", []float64{4})
	assert.True(t, buf.ShouldProject(), "length above threshold stays true")
}

func TestSnapshotAlignment(t *testing.T) {
	buf := NewBuffer()
	buf.Append("hello", []float64{1.0, 2.0})
	buf.Append("world", []float64{3.0, 4.0})

	texts, vectors := buf.Snapshot()
	require.Len(t, texts, 2)
	require.Len(t, vectors, 2)
	assert.Equal(t, "hello", texts[0])
	assert.Equal(t, []float64{1.0, 2.0}, vectors[0])
	assert.Equal(t, "world", texts[1])
	assert.Equal(t, []float64{3.0, 4.0}, vectors[1])
}

func TestSnapshotIsACopy(t *testing.T) {
	buf := NewBuffer()
	buf.Append("hello", []float64{1.0, 2.0})

	texts, vectors := buf.Snapshot()
	texts[0] = "mutated"
	vectors[0][0] = 99.0

	gotTexts, gotVectors := buf.Snapshot()
	assert.Equal(t, "hello", gotTexts[0])
	assert.Equal(t, []float64{1.0, 2.0}, gotVectors[0])
}

func TestSnapshotDuringConcurrentAppends(t *testing.T) {
	buf := NewBuffer()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for k := 0; k < 200; k++ {
			buf.Append(fmt.Sprintf("t%d", k), []float64{float64(k)})
		}
	}()

	for i := 0; i < 50; i++ {
		texts, vectors := buf.Snapshot()
		assert.Equal(t, len(texts), len(vectors), "snapshot slices stay index-aligned")
	}
	wg.Wait()

	assert.Equal(t, 200, buf.Len())
}
