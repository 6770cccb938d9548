package models

// All returns every model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Role{},
		&UserProgression{},
		&ActionConfig{},
		&ActionAwardLog{},
		&AdjustmentLog{},
		&ContextMultiplier{},
		&Level{},
		&Title{},
		&UserTitle{},
		&Badge{},
		&UserBadge{},
		&LevelRewardGrant{},
		&Mission{},
		&MissionProgress{},
		&Notification{},
		&WalletTransaction{},
	}
}
