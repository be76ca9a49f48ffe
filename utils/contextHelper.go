package utils

import (
	"context"

	"github.com/AngeKano/repfi/appctx"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyCompanyId     = appctx.ContextKeyCompanyId
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserEmail     = appctx.ContextKeyUserEmail
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeyIsAdmin         = appctx.ContextKeyIsAdmin
	ContextKeySkipTenantScope = appctx.ContextKeySkipTenantScope
)

// Caller is the authenticated identity acting on a request.
type Caller struct {
	UserId    string `json:"user_id"`
	Email     string `json:"email"`
	CompanyId string `json:"company_id"`
	IsAdmin   bool   `json:"is_admin"`
}

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetCompanyIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCompanyId)
}

func GetUserIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserId)
}

func GetUserEmailFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserEmail)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetIsAdminFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsAdmin)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetSkipTenantScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipTenantScope, skip)
}

// SetCallerInContext stores every identity field at once.
func SetCallerInContext(ctx context.Context, caller Caller) context.Context {
	ctx = appctx.Set(ctx, ContextKeyUserId, caller.UserId)
	ctx = appctx.Set(ctx, ContextKeyUserEmail, caller.Email)
	ctx = appctx.Set(ctx, ContextKeyCompanyId, caller.CompanyId)
	return appctx.Set(ctx, ContextKeyIsAdmin, caller.IsAdmin)
}

// GetCallerFromContext returns the identity set by the session or auth middleware.
func GetCallerFromContext(ctx context.Context) (Caller, bool) {
	userId, ok := GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return Caller{}, false
	}
	companyId, _ := GetCompanyIdFromContext(ctx)
	email, _ := GetUserEmailFromContext(ctx)
	isAdmin, _ := GetIsAdminFromContext(ctx)
	return Caller{UserId: userId, Email: email, CompanyId: companyId, IsAdmin: isAdmin}, true
}
