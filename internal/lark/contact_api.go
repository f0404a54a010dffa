package lark

import (
	"context"
	"fmt"

	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	"go.uber.org/zap"
)

// ContactAPI handles Lark organizational directory lookups
type ContactAPI struct {
	client *Client
	logger *zap.Logger
}

// NewContactAPI creates a new contact API handler
func NewContactAPI(client *Client, logger *zap.Logger) *ContactAPI {
	return &ContactAPI{
		client: client,
		logger: logger,
	}
}

// GetUser fetches a user by open_id
func (a *ContactAPI) GetUser(ctx context.Context, openID string) (*larkcontact.User, error) {
	req := larkcontact.NewGetUserReqBuilder().
		UserId(openID).
		UserIdType("open_id").
		DepartmentIdType("department_id").
		Build()

	resp, err := a.client.client.Contact.User.Get(ctx, req)
	if err != nil {
		a.logger.Error("Failed to get user",
			zap.String("user_id", openID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !resp.Success() {
		a.logger.Error("API returned failure",
			zap.String("user_id", openID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return nil, fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	if resp.Data == nil || resp.Data.User == nil {
		return nil, fmt.Errorf("empty user response for %s", openID)
	}

	return resp.Data.User, nil
}

// GetDepartment fetches a department by department_id
func (a *ContactAPI) GetDepartment(ctx context.Context, departmentID string) (*larkcontact.Department, error) {
	req := larkcontact.NewGetDepartmentReqBuilder().
		DepartmentId(departmentID).
		DepartmentIdType("department_id").
		UserIdType("open_id").
		Build()

	resp, err := a.client.client.Contact.Department.Get(ctx, req)
	if err != nil {
		a.logger.Error("Failed to get department",
			zap.String("department_id", departmentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get department: %w", err)
	}

	if !resp.Success() {
		a.logger.Error("API returned failure",
			zap.String("department_id", departmentID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return nil, fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	if resp.Data == nil || resp.Data.Department == nil {
		return nil, fmt.Errorf("empty department response for %s", departmentID)
	}

	return resp.Data.Department, nil
}
