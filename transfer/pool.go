/*
 * Copyright 2019 Tero Vierimaa
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package transfer

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/task"
)

// drainGrace bounds how long Stop waits for in-flight downloads after the
// request loop has exited; past it the process moves on and any partial
// .tmp files are simply overwritten on the next run.
const drainGrace = 15 * time.Second

// Event is the reply the pool sends back for a Request, tagged with the
// token the caller supplied so a superseded pending-play can discard a
// Ready/Failed that arrives after it no longer cares.
type Event struct {
	Token   uint64
	Key     Key
	Path    string
	Failed  bool
	Reason  string
}

// Request asks the pool to serve key, replying on the pool's event channel
// with the given token attached to the response.
type Request struct {
	Token uint64
	Key   Key
	Url   string
}

type waiter struct {
	token uint64
}

// Config tunes the pool's concurrency, retry and timeout behavior. Zero
// values are replaced with sane defaults by NewPool.
type Config struct {
	MaxBytes          int64
	Concurrency       int
	MaxRetries        int
	BackoffBaseMs     int
	BackoffMaxMs      int
	HttpTimeout       time.Duration
	HttpConnectTimeout time.Duration
}

func (c *Config) sanitize() {
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBaseMs <= 0 {
		c.BackoffBaseMs = 250
	}
	if c.BackoffMaxMs <= 0 {
		c.BackoffMaxMs = 4000
	}
	if c.HttpTimeout <= 0 {
		c.HttpTimeout = 10 * time.Second
	}
	if c.HttpConnectTimeout <= 0 {
		c.HttpConnectTimeout = 5 * time.Second
	}
}

// Pool is the bounded async download pool: single-flight per key,
// LRU-capped on insert, tmp-then-rename promotion.
//
// cfg, client and sem are mutable at runtime (the settings handlers
// adjust cache cap, concurrency, timeouts and the retry schedule while
// downloads are in flight); they are guarded by mu and each download
// snapshots them once at its start. mu is never held across an HTTP call
// or file I/O.
type Pool struct {
	task.Task

	index *Index

	mu      sync.Mutex
	cfg     Config
	client  *resty.Client
	sem     *semaphore.Weighted
	waiters map[Key][]waiter

	wg sync.WaitGroup

	requests chan Request
	cancels  chan uint64
	events   chan Event
}

// NewPool builds a pool serving out of index's directory.
func NewPool(index *Index, cfg Config) *Pool {
	cfg.sanitize()
	p := &Pool{
		cfg:      cfg,
		index:    index,
		client:   newHTTPClient(cfg.HttpTimeout, cfg.HttpConnectTimeout),
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		waiters:  make(map[Key][]waiter),
		requests: make(chan Request, 32),
		cancels:  make(chan uint64, 32),
		events:   make(chan Event, 32),
	}
	p.Name = "transfer.Pool"
	p.Task.SetLoop(p.loop)
	return p
}

// newHTTPClient builds a resty client with both a total and a connect
// timeout. Retries are the pool's own schedule, never resty's.
func newHTTPClient(total, connect time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(total).
		SetRetryCount(0).
		SetTransport(&http.Transport{
			DialContext: (&net.Dialer{Timeout: connect}).DialContext,
		})
}

// SetMaxBytes changes the cache size cap and applies it immediately,
// evicting LRU entries that no longer fit.
func (p *Pool) SetMaxBytes(maxBytes int64) {
	p.mu.Lock()
	p.cfg.MaxBytes = maxBytes
	p.mu.Unlock()
	p.index.EnforceCap(maxBytes)
	if err := p.index.Save(); err != nil {
		logrus.Warnf("save cache index: %v", err)
	}
}

// SetConcurrency replaces the download semaphore. Downloads already
// holding a slot on the old semaphore finish undisturbed; new downloads
// acquire against the new limit.
func (p *Pool) SetConcurrency(n int) {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p.mu.Lock()
	p.cfg.Concurrency = n
	p.sem = semaphore.NewWeighted(int64(n))
	p.mu.Unlock()
}

// SetRetrySchedule changes the retry count and backoff window for
// subsequent downloads.
func (p *Pool) SetRetrySchedule(retries, backoffMinMs, backoffMaxMs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if retries > 0 {
		p.cfg.MaxRetries = retries
	}
	if backoffMinMs > 0 {
		p.cfg.BackoffBaseMs = backoffMinMs
	}
	if backoffMaxMs > 0 {
		p.cfg.BackoffMaxMs = backoffMaxMs
	}
}

// SetHttpTimeouts rebuilds the HTTP client with new timeouts. In-flight
// requests keep the client they started with.
func (p *Pool) SetHttpTimeouts(total, connect time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total > 0 {
		p.cfg.HttpTimeout = total
	}
	if connect > 0 {
		p.cfg.HttpConnectTimeout = connect
	}
	p.client = newHTTPClient(p.cfg.HttpTimeout, p.cfg.HttpConnectTimeout)
}

// Events returns the channel on which Ready/Failed replies are delivered.
func (p *Pool) Events() <-chan Event {
	return p.events
}

// Request asks the pool to serve key for url, tagging the reply with
// token. The request goes onto a buffered channel of 32 slots; the call
// blocks only while that buffer is full.
func (p *Pool) Request(token uint64, key Key, url string) {
	p.requests <- Request{Token: token, Key: key, Url: url}
}

// Cancel removes token's waiter entry. An in-flight download with no
// remaining waiters is allowed to complete and warm the cache rather
// than being aborted.
func (p *Pool) Cancel(token uint64) {
	p.cancels <- token
}

// PurgeBitrate removes every cached entry for songId at a bitrate other
// than keepBr. The index stays owned by the pool; callers only name the
// song and the bitrate to keep.
func (p *Pool) PurgeBitrate(songId models.Id, keepBr int) {
	p.index.BitratePurge(songId, keepBr)
}

func (p *Pool) loop() {
	for {
		select {
		case <-p.StopChan():
			return
		case req := <-p.requests:
			p.handleRequest(req)
		case token := <-p.cancels:
			p.handleCancel(token)
		}
	}
}

func (p *Pool) handleRequest(req Request) {
	now := time.Now().UnixMilli()
	if path, ok := p.index.Lookup(req.Key, now); ok {
		p.events <- Event{Token: req.Token, Key: req.Key, Path: path}
		return
	}

	p.mu.Lock()
	inFlight := len(p.waiters[req.Key]) > 0
	p.waiters[req.Key] = append(p.waiters[req.Key], waiter{token: req.Token})
	p.mu.Unlock()

	if inFlight {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.download(req.Key, req.Url)
	}()
}

// Stop shuts the request loop down, then waits for in-flight downloads to
// finish so their cache promotions land, bounded by drainGrace.
func (p *Pool) Stop() error {
	err := p.Task.Stop()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainGrace):
		logrus.Warnf("transfer pool: downloads still in flight after %v, abandoning", drainGrace)
	}
	return err
}

func (p *Pool) handleCancel(token uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, ws := range p.waiters {
		out := ws[:0]
		for _, w := range ws {
			if w.token != token {
				out = append(out, w)
			}
		}
		p.waiters[key] = out
	}
}

// download runs the retry/backoff loop for one key and fans the outcome
// out to every waiter registered for it when it finishes. Tuning values
// are snapshotted once at the start; a settings change applies to the
// next download, not this one.
func (p *Pool) download(key Key, url string) {
	p.mu.Lock()
	cfg := p.cfg
	sem := p.sem
	client := p.client
	p.mu.Unlock()

	ctx := context.Background()
	if err := sem.Acquire(ctx, 1); err != nil {
		p.fanOutFailure(key, "acquire download slot: "+err.Error())
		return
	}
	defer sem.Release(1)

	dest := p.index.Path(key)
	tmp := dest + ".tmp"

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt, cfg.BackoffBaseMs, cfg.BackoffMaxMs))
		}
		size, err := attemptDownload(client, url, tmp)
		if err == nil {
			if err := os.Rename(tmp, dest); err != nil {
				lastErr = fmt.Errorf("promote cache file: %w", err)
				continue
			}
			now := time.Now().UnixMilli()
			p.index.Insert(key, dest, size, now, cfg.MaxBytes)
			if err := p.index.Save(); err != nil {
				logrus.Warnf("save cache index: %v", err)
			}
			p.fanOutSuccess(key, dest)
			return
		}
		lastErr = err
		logrus.Warnf("download %v attempt %d/%d failed: %v", key, attempt+1, cfg.MaxRetries+1, err)
	}
	os.Remove(tmp)
	reason := "download failed"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	p.fanOutFailure(key, reason)
}

func attemptDownload(client *resty.Client, url, tmp string) (int64, error) {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open tmp file: %w", err)
	}
	defer f.Close()

	resp, err := client.R().SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return 0, fmt.Errorf("http get: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		io.Copy(io.Discard, body)
		return 0, fmt.Errorf("http status %d", resp.StatusCode())
	}

	n, err := io.Copy(f, body)
	if err != nil {
		return 0, fmt.Errorf("copy body: %w", err)
	}
	return n, nil
}

func (p *Pool) fanOutSuccess(key Key, path string) {
	for _, w := range p.takeWaiters(key) {
		p.events <- Event{Token: w.token, Key: key, Path: path}
	}
}

func (p *Pool) fanOutFailure(key Key, reason string) {
	for _, w := range p.takeWaiters(key) {
		p.events <- Event{Token: w.token, Key: key, Failed: true, Reason: reason}
	}
}

func (p *Pool) takeWaiters(key Key) []waiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	ws := p.waiters[key]
	delete(p.waiters, key)
	return ws
}

// backoff computes an exponential delay with jitter, capped at maxMs.
func backoff(attempt, baseMs, maxMs int) time.Duration {
	d := float64(baseMs) * math.Pow(2, float64(attempt-1))
	d *= 1 + (rand.Float64()-0.5)*0.2
	if d > float64(maxMs) {
		d = float64(maxMs)
	}
	return time.Duration(d) * time.Millisecond
}
