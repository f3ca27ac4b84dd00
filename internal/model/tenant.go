// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
)

// TenantScope はリクエスト単位の呼び出し元テナントを表す。永続化しない。
// 認証ミドルウェアが設定した値をそのまま信頼する。
type TenantScope struct {
	TenantID string
}

// TenantAssignment は投稿作成時のtenant_id指定を表す。
// JSONでの「未指定」と「null指定」を区別する:
//   - Present=false: 未指定（呼び出し元テナントに割り当てる）
//   - Present=true, Value=nil: グローバル投稿
//   - Present=true, Value=&"t": 指定テナント（スコープと一致する必要がある）
type TenantAssignment struct {
	Present bool
	Value   *string
}

// UnmarshalJSON はjson.Unmarshalerを実装する。呼ばれた時点でフィールドは存在している。
func (a *TenantAssignment) UnmarshalJSON(data []byte) error {
	a.Present = true
	if string(bytes.TrimSpace(data)) == "null" {
		a.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	a.Value = &s
	return nil
}

// AssignTenant はテナントを明示指定したTenantAssignmentを返す。
func AssignTenant(tenantID string) TenantAssignment {
	return TenantAssignment{Present: true, Value: &tenantID}
}

// AssignGlobal はグローバル投稿を指定するTenantAssignmentを返す。
func AssignGlobal() TenantAssignment {
	return TenantAssignment{Present: true}
}
