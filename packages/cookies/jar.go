package cookies

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxCookiesPerDomain is the number of cookies kept per domain before eviction
const DefaultMaxCookiesPerDomain = 180

// ChangeReason describes why a jar entry changed
type ChangeReason string

const (
	ReasonExplicit         ChangeReason = "explicit"
	ReasonOverwrite        ChangeReason = "overwrite"
	ReasonExpired          ChangeReason = "expired"
	ReasonEvicted          ChangeReason = "evicted"
	ReasonExpiredOverwrite ChangeReason = "expired-overwrite"
)

// Change is a record of a single jar mutation
type Change struct {
	Cookie  *Cookie      `json:"cookie"`
	Removed bool         `json:"removed"`
	Reason  ChangeReason `json:"cause"`
}

// Jar stores cookies across requests
type Jar interface {
	SetCookies(ctx context.Context, rawURL string, cookies []*Cookie) ([]Change, error)
	ListCookies(ctx context.Context, rawURL string) ([]*Cookie, error)
	DeleteCookies(ctx context.Context, rawURL, name string) ([]Change, error)
}

// JarOption configures a MemoryJar
type JarOption func(*MemoryJar)

// WithChangeListener registers a function called for every change
func WithChangeListener(fn func(Change)) JarOption {
	return func(j *MemoryJar) {
		j.listeners = append(j.listeners, fn)
	}
}

// WithMaxCookiesPerDomain overrides the per-domain limit
func WithMaxCookiesPerDomain(n int) JarOption {
	return func(j *MemoryJar) {
		if n > 0 {
			j.maxPerDomain = n
		}
	}
}

// WithClock sets the time source, used by tests
func WithClock(now func() time.Time) JarOption {
	return func(j *MemoryJar) {
		j.now = now
	}
}

// MemoryJar is a Jar held in memory. It is safe for concurrent use.
type MemoryJar struct {
	mu           sync.Mutex
	cookies      []*Cookie
	maxPerDomain int
	listeners    []func(Change)
	now          func() time.Time
}

var _ Jar = (*MemoryJar)(nil)

// NewMemoryJar creates an empty in-memory jar
func NewMemoryJar(opts ...JarOption) *MemoryJar {
	j := &MemoryJar{
		maxPerDomain: DefaultMaxCookiesPerDomain,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SetCookies merges cookies into the jar. Cookies without a domain or path
// receive the defaults of rawURL.
func (j *MemoryJar) SetCookies(_ context.Context, rawURL string, cookies []*Cookie) ([]Change, error) {
	changes, err := j.set(rawURL, cookies)
	if err != nil {
		return nil, err
	}
	j.notify(changes)
	return changes, nil
}

// ListCookies returns the non-expired cookies that apply to rawURL, longest
// path first. Expired entries found on the way are purged.
func (j *MemoryJar) ListCookies(_ context.Context, rawURL string) ([]*Cookie, error) {
	list, purged, err := j.list(rawURL)
	if err != nil {
		return nil, err
	}
	j.notify(purged)
	return list, nil
}

// DeleteCookies removes cookies matching rawURL. An empty name removes all of them.
func (j *MemoryJar) DeleteCookies(_ context.Context, rawURL, name string) ([]Change, error) {
	changes, err := j.delete(rawURL, name)
	if err != nil {
		return nil, err
	}
	j.notify(changes)
	return changes, nil
}

// Cookies returns a copy of every stored cookie
func (j *MemoryJar) Cookies() []*Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Cookie, len(j.cookies))
	for i, c := range j.cookies {
		out[i] = c.Clone()
	}
	return out
}

// Len returns the number of stored cookies
func (j *MemoryJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cookies)
}

func (j *MemoryJar) set(rawURL string, cookies []*Cookie) ([]Change, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	host := strings.ToLower(u.Hostname())

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	var changes []Change
	for _, in := range cookies {
		if in == nil || in.Name == "" {
			continue
		}
		c := in.Clone()
		if c.Domain == "" {
			c.Domain = host
			c.HostOnly = true
		}
		if c.Path == "" {
			c.Path = DefaultPath(u.Path)
		}
		if c.Created.IsZero() {
			c.Created = now
		}
		c.LastAccess = now
		if c.ExpirationDate == nil {
			c.Session = true
		}

		changes = append(changes, j.insert(c, now)...)
	}
	return changes, nil
}

// insert must be called with the lock held
func (j *MemoryJar) insert(c *Cookie, now time.Time) []Change {
	key := c.Key()
	idx := j.indexOf(key)
	expired := c.Expired(now)

	if idx >= 0 {
		old := j.cookies[idx]
		if expired {
			j.removeAt(idx)
			return []Change{{Cookie: old.Clone(), Removed: true, Reason: ReasonExpiredOverwrite}}
		}
		c.Created = old.Created
		j.cookies[idx] = c
		return []Change{{Cookie: c.Clone(), Reason: ReasonOverwrite}}
	}

	if expired {
		return []Change{{Cookie: c.Clone(), Removed: true, Reason: ReasonExpired}}
	}

	j.cookies = append(j.cookies, c)
	changes := []Change{{Cookie: c.Clone(), Reason: ReasonExplicit}}
	if evicted := j.evict(normalizeDomain(c.Domain), key); evicted != nil {
		changes = append(changes, Change{Cookie: evicted, Removed: true, Reason: ReasonEvicted})
	}
	return changes
}

// evict drops the least recently used cookie of domain when over the limit.
func (j *MemoryJar) evict(domain, keep string) *Cookie {
	count := 0
	oldest := -1
	for i, c := range j.cookies {
		if normalizeDomain(c.Domain) != domain {
			continue
		}
		count++
		if c.Key() == keep {
			continue
		}
		if oldest < 0 || c.LastAccess.Before(j.cookies[oldest].LastAccess) {
			oldest = i
		}
	}
	if count <= j.maxPerDomain || oldest < 0 {
		return nil
	}
	victim := j.cookies[oldest]
	j.removeAt(oldest)
	return victim.Clone()
}

func (j *MemoryJar) list(rawURL string) ([]*Cookie, []Change, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, nil, err
	}
	host := strings.ToLower(u.Hostname())
	secure := u.Scheme == "https" || u.Scheme == "wss"

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	var purged []Change
	var matched []*Cookie
	kept := j.cookies[:0]
	for _, c := range j.cookies {
		if c.Expired(now) {
			purged = append(purged, Change{Cookie: c.Clone(), Removed: true, Reason: ReasonExpired})
			continue
		}
		kept = append(kept, c)
		if !matchesURL(c, host, u.Path) {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		c.LastAccess = now
		matched = append(matched, c.Clone())
	}
	for i := len(kept); i < len(j.cookies); i++ {
		j.cookies[i] = nil
	}
	j.cookies = kept

	sort.SliceStable(matched, func(a, b int) bool {
		if len(matched[a].Path) != len(matched[b].Path) {
			return len(matched[a].Path) > len(matched[b].Path)
		}
		return matched[a].Created.Before(matched[b].Created)
	})
	return matched, purged, nil
}

func (j *MemoryJar) delete(rawURL, name string) ([]Change, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	host := strings.ToLower(u.Hostname())

	j.mu.Lock()
	defer j.mu.Unlock()

	var changes []Change
	kept := j.cookies[:0]
	for _, c := range j.cookies {
		if (name == "" || c.Name == name) && matchesURL(c, host, u.Path) {
			changes = append(changes, Change{Cookie: c.Clone(), Removed: true, Reason: ReasonExplicit})
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(j.cookies); i++ {
		j.cookies[i] = nil
	}
	j.cookies = kept
	return changes, nil
}

// snapshot copies the stored cookies so a failed write-through can undo
// an in-memory change
func (j *MemoryJar) snapshot() []*Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Cookie, len(j.cookies))
	for i, c := range j.cookies {
		out[i] = c.Clone()
	}
	return out
}

func (j *MemoryJar) restore(cookies []*Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = cookies
}

// load appends stored cookies without emitting changes
func (j *MemoryJar) load(cookies []*Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if idx := j.indexOf(c.Key()); idx >= 0 {
			j.cookies[idx] = c
			continue
		}
		j.cookies = append(j.cookies, c)
	}
}

func (j *MemoryJar) notify(changes []Change) {
	for _, ch := range changes {
		for _, fn := range j.listeners {
			fn(ch)
		}
	}
}

func (j *MemoryJar) indexOf(key string) int {
	for i, c := range j.cookies {
		if c.Key() == key {
			return i
		}
	}
	return -1
}

func (j *MemoryJar) removeAt(i int) {
	copy(j.cookies[i:], j.cookies[i+1:])
	j.cookies[len(j.cookies)-1] = nil
	j.cookies = j.cookies[:len(j.cookies)-1]
}

func matchesURL(c *Cookie, host, path string) bool {
	if path == "" {
		path = "/"
	}
	if c.HostOnly {
		if normalizeDomain(c.Domain) != host {
			return false
		}
	} else if !MatchesDomain(c.Domain, host) {
		return false
	}
	return MatchesPath(c.Path, path)
}
