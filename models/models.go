package models

// All 列出需要遷移的所有資料表模型
func All() []any {
	return []any{
		&User{},
		&UserIdentity{},
		&Load{},
		&Bid{},
		&Message{},
	}
}
