//go:build !linux

package workqueue

// newWakeable on non-Linux platforms always uses the portable channel
// fallback, since eventfd/epoll are Linux-only.
func newWakeable() wakeable {
	return newChanWakeable()
}
