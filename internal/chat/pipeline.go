package chat

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nanom-ai/nanom/internal/cloud"
	"github.com/nanom-ai/nanom/internal/gemini"
	"github.com/nanom-ai/nanom/internal/reply"
	"github.com/nanom-ai/nanom/internal/store"
	"github.com/nanom-ai/nanom/internal/telemetry"
)

// anonymousKey is the local storage identity used before sign-in.
const anonymousKey = "anonymous"

// Pipeline owns the end-to-end flow: generation, reply normalization,
// local persistence, and background mirroring to the sync backend.
// Persistence never fails a user-visible operation; local and remote
// write errors are logged and swallowed.
type Pipeline struct {
	gen     *gemini.Orchestrator
	store   *store.SessionStore
	cloud   *cloud.Client
	metrics *telemetry.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	identity cloud.Identity
	data     *UserData
}

func NewPipeline(gen *gemini.Orchestrator, st *store.SessionStore, cl *cloud.Client, metrics *telemetry.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		gen:     gen,
		store:   st,
		cloud:   cl,
		metrics: metrics,
		logger:  logger,
		data:    &UserData{},
	}
}

// LoadLocal replaces the in-memory data with whatever local storage holds
// for the current identity. Missing or unreadable blobs leave an empty
// data set.
func (p *Pipeline) LoadLocal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLocalLocked()
}

func (p *Pipeline) loadLocalLocked() {
	p.data = &UserData{}
	raw, found, err := p.store.Load(p.storageKeyLocked())
	if err != nil {
		p.logger.Warn("local load failed", zap.Error(err))
		return
	}
	if !found {
		return
	}
	var data UserData
	if err := json.Unmarshal(raw, &data); err != nil {
		p.logger.Warn("local data unreadable, starting fresh", zap.Error(err))
		return
	}
	p.data = &data
}

// Sessions returns the current session list, newest first.
func (p *Pipeline) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]*Session(nil), p.data.Sessions...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// StartSession creates a session and registers it.
func (p *Pipeline) StartSession() *Session {
	s := NewSession()
	p.mu.Lock()
	p.data.Sessions = append(p.data.Sessions, s)
	p.mu.Unlock()
	return s
}

// Generate runs the prompt through the model cascade and normalizes the
// reply. On failure the outcome carries the message to show the user.
func (p *Pipeline) Generate(ctx context.Context, sess *Session, prompt string) (reply.ParsedReply, gemini.Outcome) {
	out := p.gen.Generate(ctx, sess.History, prompt)
	if !out.OK() {
		return reply.ParsedReply{}, out
	}
	return reply.Parse(out.Text), out
}

// PersistTurn records a completed exchange in the session and pushes it
// to local storage and, when signed in, to the sync backend. The caller's
// flow continues regardless of persistence outcome.
func (p *Pipeline) PersistTurn(ctx context.Context, sess *Session, userText, modelText string) {
	sess.Append(gemini.RoleUser, userText)
	sess.Append(gemini.RoleModel, modelText)

	p.saveLocal()
	p.pushRemote(ctx, sess)
}

// DeleteSession removes a session remotely first, then locally. The
// remote delete has to succeed (or be a no-op) before local state changes,
// so a failed remote delete cannot resurrect the session on next sync.
func (p *Pipeline) DeleteSession(ctx context.Context, localID string) error {
	p.mu.Lock()
	var target *Session
	for _, s := range p.data.Sessions {
		if s.LocalID == localID {
			target = s
			break
		}
	}
	identity := p.identity
	p.mu.Unlock()
	if target == nil {
		return nil
	}

	issued, err := p.cloud.DeleteSession(ctx, identity, target.ID)
	p.metrics.RecordSync(ctx, "delete", err == nil)
	if err != nil {
		return err
	}
	if issued {
		p.logger.Debug("remote session deleted", zap.String("id", target.ID))
	}

	p.mu.Lock()
	kept := p.data.Sessions[:0]
	for _, s := range p.data.Sessions {
		if s.LocalID != localID {
			kept = append(kept, s)
		}
	}
	p.data.Sessions = kept
	p.mu.Unlock()

	p.saveLocal()
	p.mirrorUserData(ctx)
	return nil
}

// SignIn switches to a remote identity and reconciles state: the remote
// blob, when present, replaces local data wholesale, and any remote
// session rows not in the blob are folded in afterwards.
func (p *Pipeline) SignIn(ctx context.Context, id cloud.Identity) error {
	p.mu.Lock()
	p.identity = id
	p.loadLocalLocked()
	p.mu.Unlock()

	blob, found, err := p.cloud.LoadUserData(ctx, id)
	p.metrics.RecordSync(ctx, "load_blob", err == nil)
	if err != nil {
		return err
	}
	if found {
		if err := p.store.MergeRemote(id.Email, blob); err != nil {
			p.logger.Warn("merge remote blob failed", zap.Error(err))
		}
		var data UserData
		if err := json.Unmarshal(blob, &data); err == nil {
			p.mu.Lock()
			p.data = &data
			p.mu.Unlock()
		} else {
			p.logger.Warn("remote blob unreadable, keeping local data", zap.Error(err))
		}
	}

	rows, err := p.cloud.ListSessions(ctx, id)
	p.metrics.RecordSync(ctx, "list", err == nil)
	if err != nil {
		return err
	}
	p.foldRemoteRows(rows)

	p.saveLocal()
	return nil
}

// SignOut drops the identity and reloads the anonymous local data.
func (p *Pipeline) SignOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = cloud.Identity{}
	p.loadLocalLocked()
}

func (p *Pipeline) foldRemoteRows(rows []cloud.SessionRow) {
	p.mu.Lock()
	defer p.mu.Unlock()

	known := make(map[string]bool, len(p.data.Sessions))
	for _, s := range p.data.Sessions {
		if s.ID != "" {
			known[s.ID] = true
		}
	}
	for _, row := range rows {
		if known[row.ID] {
			continue
		}
		s := &Session{
			ID:        row.ID,
			LocalID:   row.ID,
			Title:     row.Title,
			UpdatedAt: row.UpdatedAt,
		}
		if err := json.Unmarshal(row.History, &s.History); err != nil {
			p.logger.Warn("remote session history unreadable, skipping",
				zap.String("id", row.ID), zap.Error(err))
			continue
		}
		p.data.Sessions = append(p.data.Sessions, s)
	}
}

func (p *Pipeline) pushRemote(ctx context.Context, sess *Session) {
	p.mu.Lock()
	identity := p.identity
	p.mu.Unlock()
	if identity.UserID == "" {
		return
	}

	history, err := json.Marshal(sess.History)
	if err != nil {
		p.logger.Warn("encode history failed", zap.Error(err))
		return
	}
	row := cloud.SessionRow{
		ID:        sess.ID,
		Title:     sess.Title,
		History:   history,
		UpdatedAt: sess.UpdatedAt,
	}
	id, err := p.cloud.UpsertSession(ctx, identity, row)
	p.metrics.RecordSync(ctx, "upsert", err == nil)
	if err != nil {
		p.logger.Warn("remote session upsert failed", zap.Error(err))
		return
	}
	if sess.ID == "" && id != "" {
		sess.ID = id
		p.saveLocal()
	}

	p.mirrorUserData(ctx)
}

func (p *Pipeline) mirrorUserData(ctx context.Context) {
	p.mu.Lock()
	identity := p.identity
	raw, err := json.Marshal(p.data)
	p.mu.Unlock()
	if identity.UserID == "" {
		return
	}
	if err != nil {
		p.logger.Warn("encode user data failed", zap.Error(err))
		return
	}
	err = p.cloud.SaveUserData(ctx, identity, raw)
	p.metrics.RecordSync(ctx, "save_blob", err == nil)
	if err != nil {
		p.logger.Warn("remote blob mirror failed", zap.Error(err))
	}
}

func (p *Pipeline) saveLocal() {
	p.mu.Lock()
	key := p.storageKeyLocked()
	raw, err := json.Marshal(p.data)
	p.mu.Unlock()
	if err != nil {
		p.logger.Warn("encode local data failed", zap.Error(err))
		return
	}
	if err := p.store.Save(key, raw); err != nil {
		p.logger.Warn("local save failed", zap.Error(err))
	}
}

func (p *Pipeline) storageKeyLocked() string {
	if p.identity.Email != "" {
		return p.identity.Email
	}
	return anonymousKey
}

// touch refreshes a session timestamp without appending a turn. Used when
// metadata changes, a rename for example.
func (p *Pipeline) touch(sess *Session) {
	sess.UpdatedAt = time.Now().UTC()
}

// Rename changes a session title and persists the change.
func (p *Pipeline) Rename(ctx context.Context, sess *Session, title string) {
	sess.Title = title
	p.touch(sess)
	p.saveLocal()
	p.pushRemote(ctx, sess)
}
