package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/larder/internal/allocator"
	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/identity"
	"github.com/mmynk/larder/internal/models"
)

// CookingService drives recipe sessions.
type CookingService struct {
	alloc  *allocator.Allocator
	logger *slog.Logger
}

// NewCookingService creates a CookingService.
func NewCookingService(alloc *allocator.Allocator, logger *slog.Logger) *CookingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CookingService{alloc: alloc, logger: logger}
}

type StartSessionRequest struct {
	HouseholdID string        `json:"householdId"`
	Recipe      models.Recipe `json:"recipe"`
}

type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

type SetServingsRequest struct {
	SessionID string `json:"sessionId"`
	Servings  int    `json:"servings"`
}

type StageRequest struct {
	SessionID  string  `json:"sessionId"`
	Ingredient string  `json:"ingredient"`
	ItemID     string  `json:"itemId"`
	Amount     float64 `json:"amount"`
}

// IngredientView is the progress of one ingredient.
type IngredientView struct {
	Name       string          `json:"name"`
	Required   float64         `json:"required"`
	Staged     float64         `json:"staged"`
	Candidates []CandidateView `json:"candidates"`
}

type CandidateView struct {
	Item      models.FoodItem `json:"item"`
	Staged    float64         `json:"staged"`
	Available float64         `json:"available"`
}

// SessionView is the state of a session after each call.
type SessionView struct {
	SessionID   string           `json:"sessionId"`
	Step        string           `json:"step"`
	Index       int              `json:"index"`
	Servings    int              `json:"servings"`
	Ingredients []IngredientView `json:"ingredients"`
}

type CommitResponse struct {
	Session   SessionView        `json:"session"`
	Updated   map[string]float64 `json:"updated"`
	Deleted   []string           `json:"deleted"`
	RatPoints int64              `json:"ratPoints"`
}

// Routes returns the CookingService procedures.
func (s *CookingService) Routes(opts ...connect.HandlerOption) []Route {
	return []Route{
		unary(Procedure("CookingService", "StartSession"), s.StartSession, opts...),
		unary(Procedure("CookingService", "SetServings"), s.SetServings, opts...),
		unary(Procedure("CookingService", "Stage"), s.Stage, opts...),
		unary(Procedure("CookingService", "Next"), s.Next, opts...),
		unary(Procedure("CookingService", "Back"), s.Back, opts...),
		unary(Procedure("CookingService", "Commit"), s.Commit, opts...),
		unary(Procedure("CookingService", "Reset"), s.Reset, opts...),
		unary(Procedure("CookingService", "Abandon"), s.Abandon, opts...),
	}
}

// StartSession opens a recipe session on a household's inventory.
func (s *CookingService) StartSession(ctx context.Context, req *StartSessionRequest) (*SessionView, error) {
	sess, err := s.alloc.Start(ctx, req.HouseholdID, req.Recipe)
	if err != nil {
		return nil, err
	}
	return view(sess), nil
}

// SetServings chooses the number of servings.
func (s *CookingService) SetServings(ctx context.Context, req *SetServingsRequest) (*SessionView, error) {
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SetServings(req.Servings); err != nil {
		return nil, err
	}
	return view(sess), nil
}

// Stage selects an amount of an item for an ingredient.
func (s *CookingService) Stage(ctx context.Context, req *StageRequest) (*SessionView, error) {
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SelectFoodItemForIngredient(req.Ingredient, req.ItemID, req.Amount); err != nil {
		return nil, err
	}
	return view(sess), nil
}

// Next advances the session.
func (s *CookingService) Next(ctx context.Context, req *SessionRequest) (*SessionView, error) {
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Next(); err != nil {
		return nil, err
	}
	return view(sess), nil
}

// Back returns to the previous step.
func (s *CookingService) Back(ctx context.Context, req *SessionRequest) (*SessionView, error) {
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Back(); err != nil {
		return nil, err
	}
	return view(sess), nil
}

// Commit applies the staged consumption and ends the session.
func (s *CookingService) Commit(ctx context.Context, req *SessionRequest) (*CommitResponse, error) {
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	res, err := sess.Commit(ctx)
	if err != nil {
		return nil, err
	}
	s.alloc.End(sess.ID)
	return &CommitResponse{
		Session:   *view(sess),
		Updated:   res.Updated,
		Deleted:   res.Deleted,
		RatPoints: res.RatPoints,
	}, nil
}

// Reset discards every staged selection.
func (s *CookingService) Reset(ctx context.Context, req *SessionRequest) (*SessionView, error) {
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Reset(); err != nil {
		return nil, err
	}
	return view(sess), nil
}

// Abandon ends a session without writing anything.
func (s *CookingService) Abandon(ctx context.Context, req *SessionRequest) (*Empty, error) {
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	s.alloc.End(sess.ID)
	s.logger.Info("Recipe session abandoned", "session_id", sess.ID, "household_id", sess.HouseholdID)
	return &Empty{}, nil
}

// session returns the caller's session. Other users' sessions are reported
// as missing.
func (s *CookingService) session(ctx context.Context, id string) (*allocator.Session, error) {
	sess, err := s.alloc.Session(id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != identity.UserID(ctx) {
		return nil, apperrors.NotFound("sessions", id)
	}
	return sess, nil
}

func view(sess *allocator.Session) *SessionView {
	st := sess.State()
	v := &SessionView{
		SessionID: sess.ID,
		Step:      st.Step.String(),
		Index:     st.Index,
		Servings:  sess.Servings(),
	}
	for i, ing := range sess.Recipe.Ingredients {
		iv := IngredientView{Name: ing.Name, Staged: sess.StagedAmount(i)}
		iv.Required, _ = sess.RequiredAmount(i)
		cands, _ := sess.Candidates(i)
		for _, c := range cands {
			iv.Candidates = append(iv.Candidates, CandidateView{
				Item:      c.Item,
				Staged:    c.Staged,
				Available: c.Available(),
			})
		}
		v.Ingredients = append(v.Ingredients, iv)
	}
	return v
}
