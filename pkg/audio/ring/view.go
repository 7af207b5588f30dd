// ABOUTME: Tagged buffer views handed out by the ring
// ABOUTME: A view is either a direct slice of the ring or the staging buffer
package ring

// View is a contiguous run of frames handed to a client.
// It is implemented only by *DirectView and *StagingView.
type View interface {
	// Bytes returns the contiguous bytes of the view
	Bytes() []byte
	// Frames returns the number of frames the view covers
	Frames() int
	// Offset returns the ring frame index the view starts at
	Offset() int

	view()
}

// DirectView aliases ring memory
type DirectView struct {
	owner  *Ring
	offset int
	frames int
	bytes  []byte
}

func (v *DirectView) Bytes() []byte { return v.bytes }
func (v *DirectView) Frames() int   { return v.frames }
func (v *DirectView) Offset() int   { return v.offset }
func (v *DirectView) view()         {}

// StagingView is a copy of a wrapped run; writes reach the ring on Commit
type StagingView struct {
	owner  *Ring
	offset int
	frames int
	bytes  []byte
}

func (v *StagingView) Bytes() []byte { return v.bytes }
func (v *StagingView) Frames() int   { return v.frames }
func (v *StagingView) Offset() int   { return v.offset }
func (v *StagingView) view()         {}

// Fill sets the first n frames of the view to the silence byte
func Fill(v View, frameSize, n int, silence byte) {
	b := v.Bytes()
	if limit := n * frameSize; limit < len(b) {
		b = b[:limit]
	}
	for i := range b {
		b[i] = silence
	}
}
