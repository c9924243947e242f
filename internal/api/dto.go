package api

// SubscribeRequest is the payload the landing page posts after the browser
// grants notification permission.
type SubscribeRequest struct {
	Subscription SubscriptionDTO `json:"subscription" validate:"required"`
	LaunchTime   string          `json:"launch_time,omitempty"`
	DailyTimes   []string        `json:"daily_times,omitempty"`
	Timezone     string          `json:"timezone,omitempty"`
}

// SubscriptionDTO mirrors the browser PushSubscription JSON.
type SubscriptionDTO struct {
	Endpoint string  `json:"endpoint" validate:"required,url"`
	Keys     KeysDTO `json:"keys" validate:"required"`
}

type KeysDTO struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// UnsubscribeRequest accepts either the assigned id or the raw endpoint.
type UnsubscribeRequest struct {
	ID       string `json:"id,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// NotifyRequest triggers an immediate dispatch to one or all recipients.
type NotifyRequest struct {
	ID    string `json:"id,omitempty"`
	All   bool   `json:"all,omitempty"`
	Title string `json:"title" validate:"required"`
	Body  string `json:"body" validate:"required"`
	URL   string `json:"url,omitempty"`
}
