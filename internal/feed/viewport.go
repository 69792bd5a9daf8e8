package feed

import "sync"

const (
	// loadBehind / loadAhead define the admission window around the
	// current index within which queued posts are actually decoded.
	loadBehind = 2
	loadAhead  = 10

	// loadHead: the first few posts are always kept loaded so jumping back
	// to the top never shows an empty player.
	loadHead = 5

	// DefaultFetchThreshold is how close to the queue tail the viewer must
	// scroll before a fetch is requested.
	DefaultFetchThreshold = 20
)

// FetchRequester is the controller-side surface the tracker drives.
type FetchRequester interface {
	SetCurrentIndex(idx int)
	QueueLen() int
	QueueEnd() bool
	Fetching() bool
}

// Viewport observes which queue index is centered in the viewport and
// raises advance and near-end signals. It owns currentIdx; the admission
// window it exposes bounds which posts the render layer instantiates.
type Viewport struct {
	mu         sync.Mutex
	currentIdx int
	threshold  int
	controller FetchRequester
	requestFn  func()
}

// NewViewport creates a tracker wired to the controller. threshold <= 0
// selects DefaultFetchThreshold. requestFetch is invoked (outside the
// tracker's lock) whenever the viewer is within threshold of the queue
// tail and no fetch is in flight.
func NewViewport(controller FetchRequester, threshold int, requestFetch func()) *Viewport {
	if threshold <= 0 {
		threshold = DefaultFetchThreshold
	}
	return &Viewport{
		threshold:  threshold,
		controller: controller,
		requestFn:  requestFetch,
	}
}

// OnIntersection records that the post at idx has become the dominant
// visible element. An event for the index already recorded is a no-op
// (debounce). If the viewer is near the queue tail and the feed has not
// ended, a fetch is requested.
func (v *Viewport) OnIntersection(idx int) {
	v.mu.Lock()
	if idx == v.currentIdx {
		v.mu.Unlock()
		return
	}
	v.currentIdx = idx
	threshold := v.threshold
	v.mu.Unlock()

	v.controller.SetCurrentIndex(idx)

	if v.controller.QueueEnd() || v.controller.Fetching() {
		return
	}
	if v.controller.QueueLen()-idx <= threshold && v.requestFn != nil {
		v.requestFn()
	}
}

// CurrentIndex returns the viewer's recorded position.
func (v *Viewport) CurrentIndex() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentIdx
}

// ToLoad reports whether the post at idx falls inside the decode window:
// [current-2, current+10], plus the first few indices unconditionally.
// Posts outside this window exist in the queue but are not decoded.
func (v *Viewport) ToLoad(idx int) bool {
	v.mu.Lock()
	cur := v.currentIdx
	v.mu.Unlock()
	if idx <= loadHead {
		return true
	}
	delta := idx - cur
	return delta <= loadAhead && delta >= -loadBehind
}

// ShowVideo reports whether the post at idx should remain mounted: the
// current post, everything ahead, and a short tail behind for scroll-back.
func (v *Viewport) ShowVideo(idx int) bool {
	v.mu.Lock()
	cur := v.currentIdx
	v.mu.Unlock()
	return idx-cur >= -loadBehind
}
