package model

// NotificationSettings is the user-configured reminder schedule, persisted
// in the local store. Times are local-clock "HH:MM" strings.
type NotificationSettings struct {
	Enabled bool     `json:"enabled"`
	Times   []string `json:"times"`
}

// DefaultNotificationSettings returns the disabled single-slot default.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{Enabled: false, Times: []string{"09:00"}}
}

// PushSubscription is a web-push endpoint registered by a client device.
type PushSubscription struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh"`
	AuthKey   string `json:"auth"`
}
