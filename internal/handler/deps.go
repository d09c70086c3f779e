package handler

import (
	"linechat/internal/app/accounts"
	"linechat/internal/app/friends"
	"linechat/internal/app/gm"
	"linechat/internal/app/groups"
	"linechat/internal/app/pm"
	"linechat/internal/app/sessions"
	"linechat/internal/configs"
	"linechat/internal/pkg/activity"
)

// AppDeps bundles the stores and services every verb handler needs.
type AppDeps struct {
	Config   *configs.AppConfig
	Accounts *accounts.Store
	Sessions *sessions.Registry
	Friends  *friends.Store
	Groups   *groups.Store
	PM       *pm.Store
	GM       *gm.Store
	Activity *activity.Sink
}
