package session

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/domain"
)

// Session binds one authenticated manager. Operations that change league
// state take the session explicitly; several may be active at once.
type Session struct {
	ID          string    `json:"id"`
	ManagerID   string    `json:"managerId"`
	ManagerName string    `json:"managerName"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Require returns ErrNoActiveSession for a nil session.
func Require(s *Session) error {
	if s == nil {
		return domain.ErrNoActiveSession
	}
	return nil
}

// Directory resolves manager ids to their records.
type Directory interface {
	Manager(ctx context.Context, id string) (domain.Manager, error)
}

type gateMsg interface{ isGateMsg() }

type registerSession struct {
	Session *Session
}

type getSession struct {
	ID    string
	Reply chan *Session
}

type removeSession struct {
	ID    string
	Reply chan bool
}

type countSessions struct {
	Reply chan int
}

type shutdownGate struct{}

func (registerSession) isGateMsg() {}
func (getSession) isGateMsg()      {}
func (removeSession) isGateMsg()   {}
func (countSessions) isGateMsg()   {}
func (shutdownGate) isGateMsg()    {}

var errGateStopped = errors.New("session gate stopped")

type Gate struct {
	inbox    chan gateMsg
	sessions map[string]*Session
	keys     Keys
	dir      Directory
	tokens   *Tokens
	clock    clock.Clock
	ttl      time.Duration
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

type Options struct {
	Keys      Keys
	Directory Directory
	Tokens    *Tokens
	Clock     clock.Clock
	TTL       time.Duration
	Logger    *zap.Logger
}

func NewGate(parent context.Context, opts Options) *Gate {
	ctx, cancel := context.WithCancel(parent)
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	g := &Gate{
		inbox:    make(chan gateMsg, 64),
		sessions: make(map[string]*Session),
		keys:     opts.Keys,
		dir:      opts.Directory,
		tokens:   opts.Tokens,
		clock:    opts.Clock,
		ttl:      opts.TTL,
		logger:   opts.Logger.Named("session"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go g.loop()
	return g
}

func (g *Gate) loop() {
	for {
		select {
		case <-g.ctx.Done():
			return

		case m := <-g.inbox:
			switch msg := m.(type) {
			case registerSession:
				g.sessions[msg.Session.ID] = msg.Session

			case getSession:
				s := g.sessions[msg.ID]
				if s != nil && !s.ExpiresAt.IsZero() && !g.clock.Now().Before(s.ExpiresAt) {
					delete(g.sessions, msg.ID)
					s = nil
				}
				msg.Reply <- s // May be nil

			case removeSession:
				_, ok := g.sessions[msg.ID]
				delete(g.sessions, msg.ID)
				msg.Reply <- ok

			case countSessions:
				msg.Reply <- len(g.sessions)

			case shutdownGate:
				clear(g.sessions)
				g.cancel()
			}
		}
	}
}

func (g *Gate) send(ctx context.Context, m gateMsg) error {
	select {
	case g.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.ctx.Done():
		return errGateStopped
	}
}

// Authenticate checks suppliedKey against the manager's configured secret.
// On mismatch no session is created. On success the session is registered
// and a signed token naming it is returned.
func (g *Gate) Authenticate(ctx context.Context, managerID, suppliedKey string) (*Session, string, error) {
	if !g.keys.Verify(managerID, suppliedKey) {
		g.logger.Info("rejected manager key", zap.String("manager_id", managerID))
		return nil, "", domain.ErrInvalidKey
	}

	m, err := g.dir.Manager(ctx, managerID)
	if err != nil {
		return nil, "", err
	}

	now := g.clock.Now().UTC()
	s := &Session{
		ID:          uuid.NewString(),
		ManagerID:   m.ID,
		ManagerName: m.Name,
		IssuedAt:    now,
	}
	if g.ttl > 0 {
		s.ExpiresAt = now.Add(g.ttl)
	}

	token, err := g.tokens.Issue(s)
	if err != nil {
		return nil, "", domain.ErrRemote("could not issue session token", err)
	}
	if err := g.send(ctx, registerSession{Session: s}); err != nil {
		return nil, "", domain.ErrRemote("could not register session", err)
	}

	g.logger.Info("manager signed in", zap.String("manager_id", s.ManagerID), zap.String("session_id", s.ID))
	return s, token, nil
}

// Current returns the live session with the given id.
func (g *Gate) Current(ctx context.Context, sessionID string) (*Session, error) {
	reply := make(chan *Session, 1)
	if err := g.send(ctx, getSession{ID: sessionID, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case s := <-reply:
		if s == nil {
			return nil, domain.ErrNoActiveSession
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.ctx.Done():
		return nil, errGateStopped
	}
}

// Resolve maps a bearer token to its live session.
func (g *Gate) Resolve(ctx context.Context, token string) (*Session, error) {
	id, err := g.tokens.Parse(token)
	if err != nil {
		return nil, domain.ErrNoActiveSession
	}
	return g.Current(ctx, id)
}

// Logout drops the session. Logging out twice is not an error.
func (g *Gate) Logout(ctx context.Context, sessionID string) error {
	reply := make(chan bool, 1)
	if err := g.send(ctx, removeSession{ID: sessionID, Reply: reply}); err != nil {
		return err
	}
	select {
	case ok := <-reply:
		if ok {
			g.logger.Info("manager signed out", zap.String("session_id", sessionID))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.ctx.Done():
		return errGateStopped
	}
}

func (g *Gate) Shutdown() {
	select {
	case g.inbox <- shutdownGate{}:
	case <-g.ctx.Done():
	}
}
