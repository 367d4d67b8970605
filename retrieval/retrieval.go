// Package retrieval fetches tile images asynchronously and bounds the number of fetches in flight.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdok/tilepyramid/geo"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTileNotFound     = errors.New("tile not found")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Request identifies the image of one tile.
type Request struct {
	// ImagePath keys the retrieval and the resulting texture
	ImagePath string
	MatrixID  string
	// Level is the position of the tile's level in the level set, 0 being the coarsest
	Level int
	// Zoom is the number of the tile matrix in its tile matrix set
	Zoom   int
	Row    int
	Column int
	Sector geo.Sector
}

func (r Request) String() string {
	return fmt.Sprintf("%s (%s/%d/%d)", r.ImagePath, r.MatrixID, r.Row, r.Column)
}

// Result is the outcome of a retrieval: the image bytes, or an error.
type Result struct {
	Request Request
	Data    []byte
	Err     error
}

// Retriever fetches the encoded image of a tile.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) ([]byte, error)
}

// RetrieverFunc adapts a function to a Retriever.
type RetrieverFunc func(ctx context.Context, req Request) ([]byte, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// Queue tracks the retrievals in flight, at most one per key and at most capacity in total.
// It is not safe for concurrent use.
type Queue struct {
	capacity int
	inFlight *orderedmap.OrderedMap[string, Request]
}

func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity, inFlight: orderedmap.New[string, Request]()}
}

func (q *Queue) Capacity() int {
	return q.capacity
}

func (q *Queue) Len() int {
	return q.inFlight.Len()
}

func (q *Queue) Contains(key string) bool {
	_, ok := q.inFlight.Get(key)
	return ok
}

// BeginRetrieval marks req as in flight. It returns false when it already is, or the queue is full.
func (q *Queue) BeginRetrieval(req Request) bool {
	if q.Contains(req.ImagePath) || q.inFlight.Len() >= q.capacity {
		return false
	}
	q.inFlight.Set(req.ImagePath, req)
	return true
}

func (q *Queue) EndRetrieval(key string) {
	q.inFlight.Delete(key)
}

// InFlight returns the retrievals in flight, oldest first.
func (q *Queue) InFlight() []Request {
	requests := make([]Request, 0, q.inFlight.Len())
	for p := q.inFlight.Oldest(); p != nil; p = p.Next() {
		requests = append(requests, p.Value)
	}
	return requests
}

// Fetcher runs retrievals in the background. Completed retrievals are collected with Drain,
// so their results are handled on the caller's goroutine.
type Fetcher struct {
	retriever Retriever
	group     errgroup.Group
	results   chan Result
}

// NewFetcher returns a fetcher for at most capacity undrained retrievals. Fetch never blocks as
// long as the caller keeps that bound, as a Queue of the same capacity does.
func NewFetcher(retriever Retriever, capacity int) *Fetcher {
	return &Fetcher{retriever: retriever, results: make(chan Result, capacity)}
}

// Fetch starts retrieving req. The result is available from Drain once it completes.
func (f *Fetcher) Fetch(ctx context.Context, req Request) {
	f.group.Go(func() error {
		data, err := f.retriever.Retrieve(ctx, req)
		f.results <- Result{Request: req, Data: data, Err: err}
		return nil
	})
}

// Drain returns the results completed since the previous call, without waiting.
func (f *Fetcher) Drain() []Result {
	var results []Result
	for {
		select {
		case r := <-f.results:
			results = append(results, r)
		default:
			return results
		}
	}
}

// Wait blocks until all started retrievals have completed.
func (f *Fetcher) Wait() {
	_ = f.group.Wait()
}
