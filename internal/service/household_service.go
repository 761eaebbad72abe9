package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/larder/internal/coordinator"
	"github.com/mmynk/larder/internal/identity"
	"github.com/mmynk/larder/internal/models"
)

// HouseholdService exposes the household and invitation protocols.
type HouseholdService struct {
	coord  *coordinator.Coordinator
	logger *slog.Logger
}

// NewHouseholdService creates a HouseholdService.
func NewHouseholdService(coord *coordinator.Coordinator, logger *slog.Logger) *HouseholdService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HouseholdService{coord: coord, logger: logger}
}

type CreateHouseholdRequest struct {
	Name string `json:"name"`
}

type HouseholdRequest struct {
	HouseholdID string `json:"householdId"`
}

type HouseholdResponse struct {
	Household *models.Household `json:"household"`
}

type SendInvitationRequest struct {
	HouseholdID string `json:"householdId"`
	Email       string `json:"email"`
}

type InvitationRequest struct {
	InvitationID string `json:"invitationId"`
}

type InvitationResponse struct {
	Invitation *models.Invitation `json:"invitation"`
}

type PointsResponse struct {
	Board []models.Points `json:"board"`
}

// Routes returns the HouseholdService procedures.
func (s *HouseholdService) Routes(opts ...connect.HandlerOption) []Route {
	return []Route{
		unary(Procedure("HouseholdService", "CreateHousehold"), s.CreateHousehold, opts...),
		unary(Procedure("HouseholdService", "SelectHousehold"), s.SelectHousehold, opts...),
		unary(Procedure("HouseholdService", "LeaveHousehold"), s.LeaveHousehold, opts...),
		unary(Procedure("HouseholdService", "SendInvitation"), s.SendInvitation, opts...),
		unary(Procedure("HouseholdService", "AcceptInvitation"), s.AcceptInvitation, opts...),
		unary(Procedure("HouseholdService", "DeclineInvitation"), s.DeclineInvitation, opts...),
		unary(Procedure("HouseholdService", "GetPoints"), s.GetPoints, opts...),
	}
}

// CreateHousehold creates a household owned by the caller.
func (s *HouseholdService) CreateHousehold(ctx context.Context, req *CreateHouseholdRequest) (*HouseholdResponse, error) {
	s.logger.Info("CreateHousehold request received", "name", req.Name)
	h, err := s.coord.CreateHousehold(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return &HouseholdResponse{Household: h}, nil
}

// SelectHousehold changes the caller's selected household.
func (s *HouseholdService) SelectHousehold(ctx context.Context, req *HouseholdRequest) (*Empty, error) {
	if err := s.coord.SelectHousehold(ctx, req.HouseholdID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// LeaveHousehold removes the caller from a household.
func (s *HouseholdService) LeaveHousehold(ctx context.Context, req *HouseholdRequest) (*Empty, error) {
	uid := identity.UserID(ctx)
	s.logger.Info("LeaveHousehold request received", "household_id", req.HouseholdID, "user_id", uid)
	if err := s.coord.LeaveHousehold(ctx, req.HouseholdID, uid); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// SendInvitation invites a registered user by email.
func (s *HouseholdService) SendInvitation(ctx context.Context, req *SendInvitationRequest) (*InvitationResponse, error) {
	s.logger.Info("SendInvitation request received", "household_id", req.HouseholdID, "email", req.Email)
	inv, err := s.coord.SendInvitation(ctx, req.HouseholdID, req.Email)
	if err != nil {
		return nil, err
	}
	return &InvitationResponse{Invitation: inv}, nil
}

// AcceptInvitation joins the household of a pending invitation.
func (s *HouseholdService) AcceptInvitation(ctx context.Context, req *InvitationRequest) (*Empty, error) {
	inv, err := s.coord.Invitation(ctx, req.InvitationID)
	if err != nil {
		return nil, err
	}
	if err := s.coord.AcceptInvitation(ctx, *inv); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// DeclineInvitation discards a pending invitation.
func (s *HouseholdService) DeclineInvitation(ctx context.Context, req *InvitationRequest) (*Empty, error) {
	inv, err := s.coord.Invitation(ctx, req.InvitationID)
	if err != nil {
		return nil, err
	}
	if err := s.coord.DeclineInvitation(ctx, *inv); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// GetPoints returns the household's points board.
func (s *HouseholdService) GetPoints(ctx context.Context, req *HouseholdRequest) (*PointsResponse, error) {
	board, err := s.coord.Points(ctx, req.HouseholdID)
	if err != nil {
		return nil, err
	}
	return &PointsResponse{Board: board}, nil
}
