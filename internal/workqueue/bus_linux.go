//go:build linux

package workqueue

import (
	"golang.org/x/sys/unix"
)

// eventfdWakeable realizes register_event(fd, handler) with a real Linux
// eventfd plus epoll, grounded in the pack's only direct precedent for
// raw eventfd/epoll plumbing (other_examples' go-ublk queue runner, which
// uses golang.org/x/sys/unix for the same kind of low-level descriptor
// work around an io_uring completion queue).
type eventfdWakeable struct {
	fd     int
	epfd   int
	stopFd int // secondary eventfd written by close() to unblock epoll
}

func newWakeable() wakeable {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return newChanWakeable()
	}
	stopFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(fd)
		return newChanWakeable()
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		unix.Close(stopFd)
		return newChanWakeable()
	}
	_ = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)})
	_ = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, stopFd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(stopFd)})
	return &eventfdWakeable{fd: fd, epfd: epfd, stopFd: stopFd}
}

func (w *eventfdWakeable) signal() {
	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(w.fd, buf[:])
}

func (w *eventfdWakeable) wait(stop <-chan struct{}) bool {
	events := make([]unix.EpollEvent, 4)
	for {
		// A bounded timeout lets the loop notice stop being closed even
		// when no signal ever arrives.
		n, err := unix.EpollWait(w.epfd, events, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false
		}
		drained := false
		for i := 0; i < n; i++ {
			var buf [8]byte
			fd := int(events[i].Fd)
			for {
				if _, err := unix.Read(fd, buf[:]); err != nil {
					break
				}
			}
			if fd == w.fd {
				drained = true
			}
			if fd == w.stopFd {
				return false
			}
		}
		select {
		case <-stop:
			return false
		default:
		}
		if drained {
			return true
		}
	}
}

func (w *eventfdWakeable) close() error {
	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(w.stopFd, buf[:])
	_ = unix.Close(w.epfd)
	_ = unix.Close(w.fd)
	_ = unix.Close(w.stopFd)
	return nil
}
