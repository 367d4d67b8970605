// Package absent remembers resources that recently failed to load, so they are not requested every frame.
package absent

import (
	"time"
)

const (
	DefaultMaxTries         = 3
	DefaultMinCheckInterval = 50 * time.Second
	DefaultTryAgainInterval = 60 * time.Second
)

type resource struct {
	timeOfLastMark time.Time
	numTries       int
	permanent      bool
}

// List tracks absent resources by key. A resource marked absent is reported absent until
// MinCheckInterval has passed, after which it may be tried again. After MaxTries marks it stays
// absent until TryAgainInterval has passed since the last mark, which forgets it entirely.
// List is not safe for concurrent use.
type List struct {
	MaxTries         int
	MinCheckInterval time.Duration
	TryAgainInterval time.Duration

	resources map[string]*resource
	now       func() time.Time
}

// New returns a list with the given limits, reading time from now, or time.Now when nil.
func New(maxTries int, minCheckInterval, tryAgainInterval time.Duration, now func() time.Time) *List {
	if now == nil {
		now = time.Now
	}
	return &List{
		MaxTries:         maxTries,
		MinCheckInterval: minCheckInterval,
		TryAgainInterval: tryAgainInterval,
		resources:        make(map[string]*resource),
		now:              now,
	}
}

// NewDefault returns a list with the default limits.
func NewDefault() *List {
	return New(DefaultMaxTries, DefaultMinCheckInterval, DefaultTryAgainInterval, nil)
}

// IsResourceAbsent reports whether key should not be requested now.
func (l *List) IsResourceAbsent(key string) bool {
	r, ok := l.resources[key]
	if !ok {
		return false
	}
	if r.permanent {
		return true
	}
	sinceLastMark := l.now().Sub(r.timeOfLastMark)
	if sinceLastMark > l.TryAgainInterval {
		delete(l.resources, key)
		return false
	}
	return r.numTries >= l.MaxTries || sinceLastMark < l.MinCheckInterval
}

// MarkResourceAbsent records a failed attempt for key.
func (l *List) MarkResourceAbsent(key string) {
	r, ok := l.resources[key]
	if !ok {
		r = &resource{}
		l.resources[key] = r
	}
	r.numTries++
	r.timeOfLastMark = l.now()
}

// MarkResourceAbsentPermanently makes key absent until it is unmarked.
func (l *List) MarkResourceAbsentPermanently(key string) {
	l.MarkResourceAbsent(key)
	l.resources[key].permanent = true
}

// UnmarkResourceAbsent forgets any failures of key.
func (l *List) UnmarkResourceAbsent(key string) {
	delete(l.resources, key)
}

// NumTries returns how often key was marked absent since it was last forgotten.
func (l *List) NumTries(key string) int {
	if r, ok := l.resources[key]; ok {
		return r.numTries
	}
	return 0
}
