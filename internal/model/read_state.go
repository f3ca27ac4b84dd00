package model

import "time"

// ReadState はテナント・ユーザーごとの既読ウォーターマークを表す。
// LastSeenAtは常にサーバー時刻で、クライアントの値は受け付けない。
type ReadState struct {
	TenantID   string
	UserID     string
	LastSeenAt time.Time
}
