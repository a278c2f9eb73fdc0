package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/devJinesh/DocuQuery/internal/apiclient"
	"github.com/devJinesh/DocuQuery/internal/model"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

const (
	titleRunes   = 60
	errorPrefix  = "Error: "
	defaultTitle = "New conversation"
)

// ErrDiscarded is returned for a query whose subject changed before the
// answer arrived.
var ErrDiscarded = errors.New("query discarded after subject change")

type Backend interface {
	Query(ctx context.Context, req apiclient.QueryRequest) (*apiclient.QueryResponse, error)
	CreateConversation(ctx context.Context, title string, docID *int64) (*model.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*model.Conversation, error)
}

type SettingsSource interface {
	Get(ctx context.Context) model.Settings
}

type Options struct {
	// Tracker enables per-subject backend conversations. Nil sends every
	// query without a conversation id.
	Tracker *Tracker
	Now     func() time.Time
}

// SubmitResult reports what Submit did. Accepted is false when the question
// was rejected before any state changed; Err then says why. For accepted
// submissions Err carries the query failure, already rendered into Reply.
type SubmitResult struct {
	Accepted bool
	Reply    model.Message
	Err      error
}

// Session is the conversation state for one chat subject. At most one query
// is in flight at a time.
type Session struct {
	backend  Backend
	settings SettingsSource
	tracker  *Tracker
	now      func() time.Time

	mu       sync.Mutex
	state    model.ConversationState
	gen      uint64
	cancel   context.CancelFunc
	onChange []func(model.ConversationState)
}

func NewSession(backend Backend, settings SettingsSource, opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		backend:  backend,
		settings: settings,
		tracker:  opts.Tracker,
		now:      now,
		state:    model.ConversationState{Messages: []model.Message{}},
	}
}

func (s *Session) OnChange(fn func(model.ConversationState)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Session) State() model.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Pending
}

// SetSubject rebinds the session to doc (nil for all documents), clearing
// the transcript. A query still in flight for the previous subject is
// cancelled and its answer dropped.
func (s *Session) SetSubject(ctx context.Context, doc *model.Document) {
	s.mu.Lock()
	s.abortLocked()
	s.state = model.ConversationState{Messages: []model.Message{}}
	if doc != nil {
		id := doc.ID
		s.state.SubjectDocumentID = &id
	}
	if s.tracker != nil {
		if convID, ok := s.tracker.Lookup(s.state.SubjectDocumentID); ok {
			s.state.ConversationID = &convID
		}
	}
	snap, fns := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	logutil.GetLogger(ctx).Debug("chat subject changed", zap.Any("doc_id", snap.SubjectDocumentID), zap.Any("conversation_id", snap.ConversationID))
	notify(fns, snap)
}

// Reset clears the transcript and forgets the subject's conversation. The
// subject itself is kept.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	s.abortLocked()
	subject := s.state.SubjectDocumentID
	if s.tracker != nil {
		s.tracker.Forget(subject)
	}
	s.state = model.ConversationState{SubjectDocumentID: subject, Messages: []model.Message{}}
	snap, fns := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	logutil.GetLogger(ctx).Debug("chat session reset")
	notify(fns, snap)
}

// AttachConversation binds an existing backend conversation to the current
// subject. Following queries carry its id.
func (s *Session) AttachConversation(id int64) {
	s.mu.Lock()
	s.state.ConversationID = &id
	if s.tracker != nil {
		s.tracker.Remember(s.state.SubjectDocumentID, id)
	}
	snap, fns := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()
	notify(fns, snap)
}

// LoadConversation replaces the transcript with the backend's record of
// conversation id and attaches it to the session.
func (s *Session) LoadConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	conv, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation %d: %w", id, err)
	}
	msgs := make([]model.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		citations := m.Citations
		if citations == nil {
			citations = []int{}
		}
		msgs = append(msgs, model.Message{Sender: m.Sender, Text: m.Text, Citations: citations, Timestamp: m.Timestamp.Time})
	}

	s.mu.Lock()
	s.abortLocked()
	s.state.Messages = msgs
	s.state.ConversationID = &conv.ID
	if conv.DocID != nil {
		docID := *conv.DocID
		s.state.SubjectDocumentID = &docID
	}
	if s.tracker != nil {
		s.tracker.Remember(s.state.SubjectDocumentID, conv.ID)
	}
	snap, fns := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	logutil.GetLogger(ctx).Debug("conversation loaded", zap.Int64("conversation_id", conv.ID), zap.Int("messages", len(msgs)))
	notify(fns, snap)
	return conv, nil
}

// Submit asks question about the current subject and blocks until the
// answer or failure has been appended. Blank questions and submissions while
// another query is pending are rejected without touching state.
func (s *Session) Submit(ctx context.Context, question string) SubmitResult {
	logger := logutil.GetLogger(ctx)
	question = strings.TrimSpace(question)
	if question == "" {
		return SubmitResult{Err: appErr.ErrEmptyQuery}
	}

	s.mu.Lock()
	if s.state.Pending {
		s.mu.Unlock()
		logger.Debug("submit ignored, query pending")
		return SubmitResult{Err: appErr.ErrBusy}
	}
	s.state.Messages = append(s.state.Messages, model.Message{
		Sender:    model.SenderUser,
		Text:      question,
		Citations: []int{},
		Timestamp: s.stampLocked(),
	})
	s.state.Pending = true
	gen := s.gen
	subject := copyID(s.state.SubjectDocumentID)
	convID := copyID(s.state.ConversationID)
	qctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	snap, fns := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()
	notify(fns, snap)
	defer cancel()

	overrides := model.Settings{}
	if s.settings != nil {
		overrides = s.settings.Get(ctx).Trimmed()
	}
	if convID == nil && s.tracker != nil {
		convID = s.startConversation(qctx, gen, subject, question)
	}

	req := apiclient.QueryRequest{
		Question:       question,
		DocID:          subject,
		ConversationID: convID,
		APIBaseURL:     overrides.APIBaseURL,
		APIKey:         overrides.APIKey,
		Model:          overrides.Model,
	}
	logger.Debug("query submitted", zap.Any("doc_id", subject), zap.Any("conversation_id", convID))
	resp, err := s.backend.Query(qctx, req)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		logger.Debug("query answer discarded", zap.Error(err))
		return SubmitResult{Accepted: true, Err: ErrDiscarded}
	}
	reply := model.Message{Sender: model.SenderAssistant, Citations: []int{}, Timestamp: s.stampLocked()}
	if err != nil {
		reply.Text = errorPrefix + appErr.Detail(err)
		reply.IsError = true
	} else {
		reply.Text = resp.Answer
		if resp.Citations != nil {
			reply.Citations = append([]int{}, resp.Citations...)
		}
	}
	s.state.Messages = append(s.state.Messages, reply)
	s.state.Pending = false
	s.cancel = nil
	snap, fns = s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()
	notify(fns, snap)

	if err != nil {
		logger.Warn("query failed", zap.Error(err))
	} else {
		logger.Debug("query answered", zap.Ints("citations", reply.Citations))
	}
	return SubmitResult{Accepted: true, Reply: cloneMessage(reply), Err: err}
}

// startConversation creates the subject's backend conversation. A failure
// leaves the query without a conversation id.
func (s *Session) startConversation(ctx context.Context, gen uint64, subject *int64, question string) *int64 {
	conv, err := s.backend.CreateConversation(ctx, conversationTitle(question), subject)
	if err != nil {
		logutil.GetLogger(ctx).Warn("create conversation failed", zap.Error(err))
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	id := conv.ID
	s.state.ConversationID = &id
	s.tracker.Remember(subject, id)
	return copyID(&id)
}

// abortLocked cancels the in-flight query, if any, and invalidates its
// answer.
func (s *Session) abortLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// stampLocked returns the current time, never earlier than the last
// message's timestamp.
func (s *Session) stampLocked() time.Time {
	ts := s.now()
	if n := len(s.state.Messages); n > 0 {
		if last := s.state.Messages[n-1].Timestamp; ts.Before(last) {
			ts = last
		}
	}
	return ts
}

func (s *Session) snapshotLocked() model.ConversationState {
	out := model.ConversationState{
		SubjectDocumentID: copyID(s.state.SubjectDocumentID),
		ConversationID:    copyID(s.state.ConversationID),
		Pending:           s.state.Pending,
		Messages:          make([]model.Message, len(s.state.Messages)),
	}
	for i, m := range s.state.Messages {
		out.Messages[i] = cloneMessage(m)
	}
	return out
}

func (s *Session) observersLocked() []func(model.ConversationState) {
	return append([]func(model.ConversationState){}, s.onChange...)
}

func notify(fns []func(model.ConversationState), state model.ConversationState) {
	for _, fn := range fns {
		fn(state)
	}
}

func conversationTitle(question string) string {
	if utf8.RuneCountInString(question) <= titleRunes {
		return question
	}
	runes := []rune(question)
	title := strings.TrimSpace(string(runes[:titleRunes]))
	if title == "" {
		return defaultTitle
	}
	return title
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneMessage(m model.Message) model.Message {
	m.Citations = append([]int{}, m.Citations...)
	return m
}
