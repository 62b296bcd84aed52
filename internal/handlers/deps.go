package handlers

import (
	"log/slog"

	"firebase.google.com/go/v4/auth"

	"github.com/GregMSThompson/finance-sync/internal/response"
)

type Deps struct {
	Log             *slog.Logger
	ResponseHandler response.ResponseHandler
	Firebase        *auth.Client
	UserSvc         userService
	ConnectionSvc   connectionService
	AccountSvc      accountService
	TransactionSvc  transactionService
	CategorySvc     categoryService
	OverrideSvc     overrideService
	SettingsSvc     settingsService
}
