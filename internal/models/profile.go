package models

import "time"

// UserProfile is the locally persisted profile used when no remote profile
// exists.
type UserProfile struct {
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Avatar      string      `json:"avatar"`
	Country     *string     `json:"country,omitempty"`
	Birthday    *string     `json:"birthday,omitempty"`
	MemberSince time.Time   `json:"member_since"`
	Preferences Preferences `json:"preferences"`
}

type Preferences struct {
	EmailNotification bool `json:"email_notification"`
	PushNotification  bool `json:"push_notification"`
	AutoPlayNextEp    bool `json:"auto_play_next_ep"`
	HQQuality         bool `json:"hq_quality"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		EmailNotification: true,
		PushNotification:  false,
		AutoPlayNextEp:    true,
		HQQuality:         true,
	}
}
