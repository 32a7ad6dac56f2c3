// Copyright 2026 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

// Package event delivers progress notifications of long running driver
// operations. The driver signals progress by adding to an eventfd counter;
// a Watcher polls the eventfd from a dedicated OS thread and hands each
// counter value to a callback.
package event

import (
	"encoding/binary"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// Result is the outcome of one poll cycle.
type Result int

// Poll cycle outcomes.
const (
	Ok Result = iota
	Timeout
	ReadError
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "ok"
	case Timeout:
		return "timeout"
	case ReadError:
		return "read error"
	}

	return "unknown"
}

// Callback receives the outcome of every poll cycle. On Timeout and
// ReadError ctr is the last counter value read.
type Callback func(res Result, ctr uint64)

// Event is a poll cycle outcome delivered over a channel.
type Event struct {
	Result  Result
	Counter uint64
}

var pollTimeout = time.Second

// Watcher owns an eventfd and the worker that polls it.
type Watcher struct {
	cb     Callback
	quit   chan struct{}
	done   chan struct{}
	onExit func()
	fd     int
	wake   int
	once   sync.Once
}

// Start creates an eventfd and starts polling it. Start returns once the
// worker is running.
func Start(cb Callback) (*Watcher, error) {
	if cb == nil {
		return nil, errors.New("nil callback")
	}

	w, err := newWatcher()
	if err != nil {
		return nil, err
	}

	w.cb = cb
	w.start()

	return w, nil
}

// Watch starts a watcher that delivers events on a channel buffered to
// size. The channel is closed when the watcher stops.
func Watch(size int) (*Watcher, <-chan Event, error) {
	w, err := newWatcher()
	if err != nil {
		return nil, nil, err
	}

	events := make(chan Event, size)

	w.cb = func(res Result, ctr uint64) {
		ev := Event{Result: res, Counter: ctr}

		select {
		case events <- ev:
			return
		default:
		}

		select {
		case events <- ev:
		case <-w.quit:
		}
	}
	w.onExit = func() { close(events) }
	w.start()

	return w, events, nil
}

func newWatcher() (*Watcher, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, "can't create eventfd")
	}

	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't create wake eventfd")
	}

	return &Watcher{
		quit: make(chan struct{}),
		done: make(chan struct{}),
		fd:   fd,
		wake: wake,
	}, nil
}

func (w *Watcher) start() {
	started := make(chan struct{})

	go w.run(started)

	<-started

	klog.V(4).Infof("event watcher started on eventfd %d", w.fd)
}

// Fd returns the eventfd to pass to the driver.
func (w *Watcher) Fd() int {
	return w.fd
}

// Stop stops the worker, waits for it to exit and closes the eventfd.
// Stop is a no-op on a nil or already stopped watcher.
func (w *Watcher) Stop() {
	if w == nil || w.quit == nil {
		return
	}

	w.once.Do(func() {
		close(w.quit)

		var one [8]byte
		binary.NativeEndian.PutUint64(one[:], 1)

		if _, err := unix.Write(w.wake, one[:]); err != nil {
			klog.V(4).Infof("can't wake event watcher: %v", err)
		}

		<-w.done

		unix.Close(w.fd)
		unix.Close(w.wake)

		klog.V(4).Infof("event watcher on eventfd %d stopped", w.fd)
	})
}

func (w *Watcher) stopping() bool {
	select {
	case <-w.quit:
		return true
	default:
		return false
	}
}

func (w *Watcher) run(started chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer close(w.done)

	if w.onExit != nil {
		defer w.onExit()
	}

	close(started)

	var (
		last uint64
		buf  [8]byte
	)

	fds := []unix.PollFd{
		{Fd: int32(w.fd), Events: unix.POLLIN},
		{Fd: int32(w.wake), Events: unix.POLLIN},
	}

	for !w.stopping() {
		n, err := unix.Poll(fds, int(pollTimeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}

		if w.stopping() {
			break
		}

		switch {
		case err != nil:
			klog.Errorf("eventfd %d: poll failed: %v", w.fd, err)
			w.cb(ReadError, last)

			return
		case n == 0:
			w.cb(Timeout, last)
		case fds[0].Revents&unix.POLLIN != 0:
			if nr, err := unix.Read(w.fd, buf[:]); err != nil || nr != len(buf) {
				klog.V(4).Infof("eventfd %d: short read %d: %v", w.fd, nr, err)
				w.cb(ReadError, last)

				continue
			}

			last = binary.NativeEndian.Uint64(buf[:])
			w.cb(Ok, last)
		}
	}

	// Deliver what was signalled before Stop.
	if nr, err := unix.Read(w.fd, buf[:]); err == nil && nr == len(buf) {
		w.cb(Ok, binary.NativeEndian.Uint64(buf[:]))
	}
}
