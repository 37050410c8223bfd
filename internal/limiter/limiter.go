/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package limiter runs submitted tasks with bounded parallelism in FIFO order.
package limiter

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Result carries the value or error produced by one task.
type Result[T any] struct {
	Value T
	Err   error
}

type job struct {
	ctx context.Context
	run func()
	// abort resolves the task without running it.
	abort func(error)
}

// Limiter admits at most n concurrently running tasks. Excess tasks wait in a FIFO queue
// and are started as running tasks finish. A Limiter is reusable after it goes idle.
type Limiter struct {
	mu     sync.Mutex
	n      int
	active int
	queue  []job
}

// New returns a limiter admitting n tasks at a time. n below 1 is treated as 1.
func New(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{n: n}
}

// Size is the maximum number of concurrently running tasks.
func (l *Limiter) Size() int {
	return l.n
}

// Active is the number of running tasks.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Pending is the number of queued tasks not yet started.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Submit schedules fn and returns a channel that receives exactly one Result.
// A task whose context is done by the time it would start is never run and
// resolves with the context error. A panicking task resolves with an error.
func Submit[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)

	j := job{ctx: ctx}
	j.run = func() {
		defer l.release()
		out <- call(ctx, fn)
	}
	j.abort = func(err error) {
		out <- Result[T]{Err: err}
	}

	l.mu.Lock()
	l.queue = append(l.queue, j)
	l.mu.Unlock()

	l.dispatch()
	return out
}

func call[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("Recovered from panic in limited task")
			res = Result[T]{Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()
	v, err := fn(ctx)
	return Result[T]{Value: v, Err: err}
}

// dispatch starts queued tasks while slots are free. Tasks with a done context are
// resolved in place and do not consume a slot.
func (l *Limiter) dispatch() {
	for {
		l.mu.Lock()
		if l.active >= l.n || len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue[0] = job{}
		l.queue = l.queue[1:]

		if err := j.ctx.Err(); err != nil {
			l.mu.Unlock()
			j.abort(err)
			continue
		}
		l.active++
		l.mu.Unlock()

		go j.run()
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	l.dispatch()
}
