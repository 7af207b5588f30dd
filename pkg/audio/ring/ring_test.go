// ABOUTME: Tests for the frame ring
// ABOUTME: Covers wraparound, staging views, invariants and error paths
package ring

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameSize = 4

// frame returns a frame whose bytes encode its logical index
func frame(i int) []byte {
	return []byte{byte(i), byte(i >> 8), byte(i >> 16), 0xA5}
}

func writeFrames(t *testing.T, r *Ring, start, n int) View {
	t.Helper()
	v, err := r.Acquire(n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		copy(v.Bytes()[i*frameSize:], frame(start+i))
	}
	require.NoError(t, r.Commit(v, n))
	return v
}

func TestNewRejectsBadSizes(t *testing.T) {
	_, err := New(0, frameSize)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = New(8, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestAcquireDirectWithinBounds(t *testing.T) {
	r, err := New(8, frameSize)
	require.NoError(t, err)

	v := writeFrames(t, r, 0, 5)
	assert.IsType(t, &DirectView{}, v)
	assert.Equal(t, 5, r.Held())
	assert.Equal(t, 3, r.Free())
}

func TestAcquireCapacityError(t *testing.T) {
	r, err := New(8, frameSize)
	require.NoError(t, err)

	writeFrames(t, r, 0, 6)

	_, err = r.Acquire(3)
	assert.ErrorIs(t, err, ErrCapacity)

	_, err = r.Acquire(2)
	assert.NoError(t, err)
}

func TestWraparoundMatchesUnboundedBuffer(t *testing.T) {
	const capacity = 8
	r, err := New(capacity, frameSize)
	require.NoError(t, err)

	var model []byte
	consumed := 0

	writeFrames(t, r, 0, capacity-1)
	for i := 0; i < capacity-1; i++ {
		model = append(model, frame(i)...)
	}

	require.NoError(t, r.Consume(capacity-2))
	consumed += capacity - 2

	// write position is 7, five frames run past the end of the ring
	v := writeFrames(t, r, capacity-1, 5)
	assert.IsType(t, &StagingView{}, v)
	for i := capacity - 1; i < capacity-1+5; i++ {
		model = append(model, frame(i)...)
	}

	require.Equal(t, 6, r.Held())

	peek, err := r.Peek(r.Held())
	require.NoError(t, err)
	assert.IsType(t, &StagingView{}, peek)
	assert.Equal(t, model[consumed*frameSize:], peek.Bytes())

	// ring memory itself holds the wrapped layout
	want := make([]byte, capacity*frameSize)
	for i := 0; i < len(model)/frameSize; i++ {
		copy(want[(i%capacity)*frameSize:], model[i*frameSize:(i+1)*frameSize])
	}
	assert.Equal(t, want, r.buf)
}

func TestStagingViewPrefilledWithRingContents(t *testing.T) {
	r, err := New(4, frameSize)
	require.NoError(t, err)

	writeFrames(t, r, 0, 3)
	require.NoError(t, r.Consume(3))

	// write position 3, run of 2 wraps; staging must mirror frames 3 and 0
	v, err := r.Acquire(2)
	require.NoError(t, err)
	require.IsType(t, &StagingView{}, v)

	want := append(append([]byte{}, r.buf[3*frameSize:]...), r.buf[:frameSize]...)
	assert.Equal(t, want, v.Bytes())
}

func TestCommitPartialStaging(t *testing.T) {
	r, err := New(4, frameSize)
	require.NoError(t, err)

	writeFrames(t, r, 0, 3)
	require.NoError(t, r.Consume(3))

	v, err := r.Acquire(3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		copy(v.Bytes()[i*frameSize:], frame(100+i))
	}
	require.NoError(t, r.Commit(v, 2))

	first, second, err := r.ReadSegments(2)
	require.NoError(t, err)
	assert.Equal(t, frame(100), first)
	assert.Equal(t, frame(101), second)
}

func TestCommitMoreThanAcquired(t *testing.T) {
	r, err := New(8, frameSize)
	require.NoError(t, err)

	v, err := r.Acquire(2)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Commit(v, 3), ErrInvalidSize)
	assert.Equal(t, 0, r.Held())
}

func TestCommitForeignView(t *testing.T) {
	a, _ := New(8, frameSize)
	b, _ := New(8, frameSize)

	v, err := a.Acquire(2)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Commit(v, 2), ErrForeignView)
}

func TestConsumeUnderflow(t *testing.T) {
	r, err := New(8, frameSize)
	require.NoError(t, err)

	writeFrames(t, r, 0, 2)
	assert.ErrorIs(t, r.Consume(3), ErrUnderflow)
	assert.NoError(t, r.Consume(2))
	assert.Equal(t, 2, r.ReadOffset())
}

func TestWriteSegmentsAndProduce(t *testing.T) {
	r, err := New(4, frameSize)
	require.NoError(t, err)

	writeFrames(t, r, 0, 3)
	require.NoError(t, r.Consume(2))

	first, second, err := r.WriteSegments(3)
	require.NoError(t, err)
	assert.Len(t, first, frameSize)
	assert.Len(t, second, 2*frameSize)

	copy(first, frame(7))
	copy(second, append(frame(8), frame(9)...))
	require.NoError(t, r.Produce(3))

	v, err := r.Peek(4)
	require.NoError(t, err)
	want := bytes.Join([][]byte{frame(2), frame(7), frame(8), frame(9)}, nil)
	assert.Equal(t, want, v.Bytes())

	_, _, err = r.WriteSegments(1)
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestFillSilence(t *testing.T) {
	r, err := New(4, 2)
	require.NoError(t, err)

	v, err := r.Acquire(3)
	require.NoError(t, err)
	Fill(v, 2, 2, 0x80)
	assert.Equal(t, []byte{0x80, 0x80, 0x80, 0x80, 0, 0}, v.Bytes())
}

func TestReset(t *testing.T) {
	r, err := New(4, frameSize)
	require.NoError(t, err)

	writeFrames(t, r, 0, 3)
	require.NoError(t, r.Consume(1))
	r.Reset()

	assert.Equal(t, 0, r.Held())
	assert.Equal(t, 0, r.ReadOffset())
}

func TestInvariantUnderRandomOperations(t *testing.T) {
	const capacity = 13
	r, err := New(capacity, frameSize)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	model := []byte{}
	next := 0

	for step := 0; step < 5000; step++ {
		switch rng.Intn(3) {
		case 0, 1:
			n := rng.Intn(capacity + 2)
			v, err := r.Acquire(n)
			if r.Held()+n > capacity {
				require.ErrorIs(t, err, ErrCapacity)
				break
			}
			require.NoError(t, err)
			for i := 0; i < n; i++ {
				copy(v.Bytes()[i*frameSize:], frame(next+i))
			}
			commit := rng.Intn(n + 1)
			require.NoError(t, r.Commit(v, commit))
			for i := 0; i < commit; i++ {
				model = append(model, frame(next+i)...)
			}
			next += commit
		case 2:
			n := rng.Intn(r.Held() + 1)
			require.NoError(t, r.Consume(n))
			model = model[n*frameSize:]
		}

		require.GreaterOrEqual(t, r.Held(), 0)
		require.LessOrEqual(t, r.Held(), capacity)
		require.GreaterOrEqual(t, r.ReadOffset(), 0)
		require.Less(t, r.ReadOffset(), capacity)
		require.Equal(t, len(model)/frameSize, r.Held())

		v, err := r.Peek(r.Held())
		require.NoError(t, err)
		require.Equal(t, model, v.Bytes(), "step %d", step)
	}
}
