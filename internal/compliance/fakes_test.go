package compliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ipo-compliance/internal/common/analysis"
	awsnotify "ipo-compliance/internal/common/aws"
	"ipo-compliance/internal/common/cache"
	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/models"
	"ipo-compliance/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// ==========================
// In-memory store
// ==========================

type memStore struct {
	mu        sync.Mutex
	now       func() time.Time
	companies map[string]*models.Company
	documents map[string]*models.Document
	users     map[string]*models.User

	applyErr    error
	finalizes   int
	startCalled []string
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:       now,
		companies: map[string]*models.Company{},
		documents: map[string]*models.Document{},
		users:     map[string]*models.User{},
	}
}

func (m *memStore) addCompany(c models.Company) {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = m.now()
	}
	m.companies[c.ID] = &c
}

func (m *memStore) addDocument(d models.Document) {
	m.documents[d.ID] = &d
}

func (m *memStore) company(id string) models.Company {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.companies[id]
}

func (m *memStore) document(id string) models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.documents[id]
}

func (m *memStore) snapshot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lines []string
	for _, c := range m.companies {
		lines = append(lines, fmt.Sprintf("c %s %s %s %s %d", c.ID, c.GenerationID, c.ComplianceStatus, c.EligibilityStatus, c.GenerationNumber))
	}
	for _, d := range m.documents {
		lines = append(lines, fmt.Sprintf("d %s %s %s", d.ID, d.GenerationID, d.BasicCheckStatus))
	}
	sort.Strings(lines)
	return fmt.Sprint(lines)
}

func (m *memStore) CompanyByID(_ context.Context, id string) (*models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.companies[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CompanyByGeneration(_ context.Context, generationID string) (*models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if c.GenerationID == generationID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ApplyStatusUpdate(_ context.Context, u store.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}

	c := m.companies[u.CompanyID]
	if c.ScoredGenerationID == u.GenerationID {
		return nil
	}

	confirmed := map[string]bool{}
	for _, id := range u.ConfirmedDocumentIDs {
		confirmed[id] = true
	}
	for _, d := range m.documents {
		if d.CompanyID != u.CompanyID {
			continue
		}
		switch {
		case confirmed[d.ID]:
			d.BasicCheckStatus = models.BasicCheckPassed
			d.GenerationID = u.GenerationID
		case u.FailUnconfirmed && d.GenerationID == u.GenerationID:
			d.BasicCheckStatus = models.BasicCheckFailed
		}
	}

	c.ComplianceStatus = u.ComplianceStatus
	c.EligibilityStatus = u.EligibilityStatus
	c.UpdatedAt = m.now()
	return nil
}

func (m *memStore) UserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) BackfillDocumentGenerations(_ context.Context, companyID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := m.companies[companyID].GenerationID
	var n int64
	for _, d := range m.documents {
		if d.CompanyID == companyID && d.GenerationID == "" && gen != "" {
			d.GenerationID = gen
			n++
		}
	}
	return n, nil
}

func (m *memStore) DocumentsByGeneration(_ context.Context, companyID, generationID string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var docs []models.Document
	for _, d := range m.documents {
		if d.CompanyID == companyID && d.GenerationID == generationID {
			docs = append(docs, *d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (m *memStore) FinalizeCompliance(_ context.Context, companyID, generationID string, status models.ComplianceStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.companies[companyID]
	if c.GenerationID != generationID || c.ScoredGenerationID == generationID {
		return false, nil
	}
	c.ComplianceStatus = status
	c.ScoredGenerationID = generationID
	c.GenerationNumber++
	c.UpdatedAt = m.now()
	m.finalizes++
	return true, nil
}

func (m *memStore) FailStaleGenerations(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, c := range m.companies {
		if c.ComplianceStatus == models.CompliancePending && c.EligibilityStatus == models.EligibilityPending && c.UpdatedAt.Before(cutoff) {
			c.ComplianceStatus = models.ComplianceFailed
			c.EligibilityStatus = models.EligibilityFailed
			c.UpdatedAt = m.now()
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) StartGeneration(_ context.Context, companyID, generationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[companyID]
	if !ok {
		return store.ErrNotFound
	}
	c.GenerationID = generationID
	c.ComplianceStatus = models.CompliancePending
	c.EligibilityStatus = models.EligibilityPending
	c.UpdatedAt = m.now()
	for _, d := range m.documents {
		if d.CompanyID == companyID {
			d.GenerationID = generationID
			d.BasicCheckStatus = models.BasicCheckPending
		}
	}
	m.startCalled = append(m.startCalled, generationID)
	return nil
}

// ==========================
// Analysis backend
// ==========================

type fakeBackend struct {
	loginErr  error
	reports   map[string]string
	fetchErrs map[string]error
	delay     time.Duration

	logins   int32
	fetches  int32
	inFlight int32
	maxSeen  int32
}

func (b *fakeBackend) Login(_ context.Context, creds analysis.Credentials) (string, error) {
	atomic.AddInt32(&b.logins, 1)
	if b.loginErr != nil {
		return "", b.loginErr
	}
	return "tok-" + creds.CompanyID, nil
}

func (b *fakeBackend) FetchReport(ctx context.Context, token, generationID, documentID string) (string, error) {
	atomic.AddInt32(&b.fetches, 1)
	cur := atomic.AddInt32(&b.inFlight, 1)
	defer atomic.AddInt32(&b.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&b.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt32(&b.maxSeen, seen, cur) {
			break
		}
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if err, ok := b.fetchErrs[documentID]; ok {
		return "", err
	}
	if r, ok := b.reports[documentID]; ok {
		return r, nil
	}
	return "", errors.New("404 report not found")
}

// ==========================
// Notifier
// ==========================

type recordingNotifier struct {
	mu      sync.Mutex
	results []awsnotify.ComplianceResult
	err     error
}

func (n *recordingNotifier) NotifyComplianceResult(_ context.Context, r awsnotify.ComplianceResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
	return n.err
}

// ==========================
// Test Helper Functions
// ==========================

type fixture struct {
	now      time.Time
	store    *memStore
	backend  *fakeBackend
	notifier *recordingNotifier
	redis    *miniredis.Miniredis
	cache    *cache.TaggedCache
	reports  *ReportService
	rec      *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	tc := cache.NewTaggedCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	f := &fixture{
		now:      time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		backend:  &fakeBackend{reports: map[string]string{}, fetchErrs: map[string]error{}},
		notifier: &recordingNotifier{},
		redis:    mr,
		cache:    tc,
	}
	f.store = newMemStore(func() time.Time { return f.now })

	log := logger.NewTestLogger(t)
	f.reports = NewReportService(f.backend, tc, 3, log)
	f.rec = NewReconciler(f.store, f.backend, f.reports, f.notifier, Policy{FailUnconfirmedDocuments: true}, log, nil)
	f.rec.now = func() time.Time { return f.now }

	f.store.users["u-1"] = &models.User{ID: "u-1", Email: "founder@acme.test", Username: "acme", Role: "admin", Plan: "growth"}
	f.store.addCompany(models.Company{
		ID: "c-1", Name: "Acme", UserID: "u-1", GenerationID: "g-1",
		ComplianceStatus: models.CompliancePending, EligibilityStatus: models.EligibilityPending,
	})
	for _, d := range []models.Document{
		{ID: "d1", CompanyID: "c-1", DocumentType: models.DocAuditReport, GenerationID: "g-1", BasicCheckStatus: models.BasicCheckPending},
		{ID: "d2", CompanyID: "c-1", DocumentType: models.DocFinancialStatements, GenerationID: "g-1", BasicCheckStatus: models.BasicCheckPending},
		{ID: "d3", CompanyID: "c-1", DocumentType: models.DocBusinessPlan, GenerationID: "g-1", BasicCheckStatus: models.BasicCheckPending},
	} {
		f.store.addDocument(d)
	}
	return f
}
