package scheduler

import (
	"sync"
	"time"

	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

// Gate assigns issuance order to requests and drops outcomes that finish after a
// newer one has already been applied. One Gate is shared by every scheduler of a session.
type Gate struct {
	mu        sync.Mutex
	issued    uint64
	applied   uint64
	appliedAt time.Time
	now       func() time.Time
}

func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// Issue stamps the request with the next sequence number and the issuance time.
func (g *Gate) Issue(req emotionmodel.Request) emotionmodel.Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.issued++
	req.Seq = g.issued
	req.SubmittedAt = g.now()
	return req
}

// Apply runs fn if the outcome is newer than the last applied one. fn runs under the
// gate lock, so applications happen in issuance order. Failed outcomes advance the
// gate as well: a stale success never overrides a newer failure indicator.
func (g *Gate) Apply(outcome emotionmodel.Outcome, fn func(emotionmodel.Outcome)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if outcome.Seq <= g.applied {
		return false
	}
	g.applied = outcome.Seq
	g.appliedAt = outcome.IssuedAt
	if fn != nil {
		fn(outcome)
	}
	return true
}

// Applied returns the sequence and issuance time of the newest applied outcome.
func (g *Gate) Applied() (uint64, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applied, g.appliedAt
}
