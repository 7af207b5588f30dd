// ABOUTME: Frame ring buffer package
// ABOUTME: Circular buffer with direct and staging views for one stream
// Package ring implements the per-stream circular frame buffer.
//
// Writers Acquire a view, fill it and Commit; readers Peek or use
// ReadSegments and then Consume. A view is a *DirectView into ring memory
// unless the requested run crosses the end of the ring, in which case a
// *StagingView over a reusable contiguous buffer is returned and Commit
// copies it back across the wrap.
//
// Example:
//
//	r, _ := ring.New(1323, 4)
//	v, err := r.Acquire(200)
//	copy(v.Bytes(), pcm)
//	err = r.Commit(v, 200)
package ring
