package preview

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LoadState is the lifecycle stage of a preview session.
type LoadState string

const (
	StateIdle    LoadState = "idle"
	StateLoading LoadState = "loading"
	StateReady   LoadState = "ready"
	StateFailed  LoadState = "failed"
)

// Session is the ephemeral state of one open preview dialog. It is rebuilt on
// every open and never shared between dialogs.
type Session struct {
	mu sync.Mutex

	id         string
	source     SourceRef
	pageCap    int
	totalPages int
	pages      []*RenderedPage
	skipped    []SkippedPage
	current    int
	state      LoadState
	failure    error
	closed     bool
}

// NewSession returns an idle session for src.
func NewSession(src SourceRef, pageCap int) (*Session, error) {
	if pageCap <= 0 {
		return nil, ErrInvalidPageCap
	}
	return &Session{
		id:      uuid.NewString(),
		source:  src,
		pageCap: pageCap,
		state:   StateIdle,
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Source() SourceRef { return s.source }

func (s *Session) PageCap() int { return s.pageCap }

// Load runs the pipeline once. The outcome is dropped if the session was
// closed while the pipeline was running.
func (s *Session) Load(ctx context.Context, p *Pipeline) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyLoaded
	}
	s.state = StateLoading
	s.mu.Unlock()

	results, total, err := p.Run(ctx, s.source, s.pageCap)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.totalPages = total
	if err != nil {
		s.fail(err)
		return err
	}
	for _, r := range results {
		if r.Rendered != nil {
			s.pages = append(s.pages, r.Rendered)
		} else {
			s.skipped = append(s.skipped, *r.Skipped)
		}
	}
	if len(s.pages) == 0 {
		s.fail(ErrNoPages)
		return ErrNoPages
	}
	s.current = 1
	s.state = StateReady
	return nil
}

func (s *Session) fail(err error) {
	s.pages = nil
	s.current = 0
	s.failure = err
	s.state = StateFailed
}

// Advance moves to the next rendered page, stopping at the last one.
func (s *Session) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return
	}
	s.current = min(s.current+1, len(s.pages))
}

// Retreat moves to the previous rendered page, stopping at the first one.
func (s *Session) Retreat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return
	}
	s.current = max(s.current-1, 1)
}

func (s *Session) State() LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) RenderedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Failure returns the error that failed the session, if any.
func (s *Session) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// IsAtPreviewLimit reports whether the viewer is on the last page the
// preview will ever show.
func (s *Session) IsAtPreviewLimit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atLimit()
}

func (s *Session) atLimit() bool {
	return s.state == StateReady && len(s.pages) > 0 && s.current == len(s.pages)
}

// Page returns rendered page n (1-indexed within the rendered sequence).
func (s *Session) Page(n int) (*RenderedPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.state != StateReady || n < 1 || n > len(s.pages) {
		return nil, ErrPageOutOfRange
	}
	return s.pages[n-1], nil
}

// Close discards the rendered pages. A pipeline still running for this
// session will not write its result.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pages = nil
	s.skipped = nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// View is the session snapshot handed to the UI layer.
type View struct {
	SessionID        string        `json:"sessionId"`
	LoadState        LoadState     `json:"loadState"`
	CurrentIndex     int           `json:"currentIndex"`
	PageCount        int           `json:"pageCount"`
	PageCap          int           `json:"pageCap"`
	IsAtPreviewLimit bool          `json:"isAtPreviewLimit"`
	TruncatedByCap   bool          `json:"truncatedByCap"`
	Skipped          []SkippedPage `json:"skipped,omitempty"`
	FailureReason    string        `json:"failureReason,omitempty"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		SessionID:        s.id,
		LoadState:        s.state,
		CurrentIndex:     s.current,
		PageCount:        len(s.pages),
		PageCap:          s.pageCap,
		IsAtPreviewLimit: s.atLimit(),
		TruncatedByCap:   s.totalPages > s.pageCap,
		Skipped:          append([]SkippedPage(nil), s.skipped...),
	}
	if s.state == StateFailed {
		v.FailureReason = Reason(s.failure)
	}
	return v
}
