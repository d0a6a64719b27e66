package offline

import "encoding/json"

const (
	defaultNotificationTitle = "CrowdCare"
	defaultNotificationURL   = "/"
)

// NotificationAction is one button on a displayed notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is a parsed push payload ready for display.
type Notification struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon"`
	Badge   string               `json:"badge"`
	Tag     string               `json:"tag"`
	URL     string               `json:"url"`
	Actions []NotificationAction `json:"actions"`
}

// ParsePush decodes a push payload into a displayable notification,
// applying the default title and target URL for missing fields. A
// payload that is not JSON still yields a usable notification with the
// raw text as body.
func ParsePush(payload []byte) Notification {
	n := Notification{}
	if err := json.Unmarshal(payload, &n); err != nil {
		n.Body = string(payload)
	}
	if n.Title == "" {
		n.Title = defaultNotificationTitle
	}
	if n.URL == "" {
		n.URL = defaultNotificationURL
	}
	if n.Tag == "" {
		n.Tag = "crowdcare-update"
	}
	n.Actions = []NotificationAction{
		{Action: "view", Title: "View"},
		{Action: "close", Title: "Close"},
	}
	return n
}

// ClickResult says what to do after a notification interaction: the
// notification always closes, and a "view" click opens the target URL.
type ClickResult struct {
	OpenURL string
	Close   bool
}

// HandleClick resolves a notification action by name. Unknown actions
// and the "close" action just dismiss the notification.
func (n Notification) HandleClick(action string) ClickResult {
	result := ClickResult{Close: true}
	if action == "view" || action == "" {
		result.OpenURL = n.URL
	}
	return result
}
