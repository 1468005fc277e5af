package notification

// Recipient is a person notifications are addressed to. It is owned by the
// user directory; the pipeline only reads it.
type Recipient struct {
	ID           string        `json:"id" bson:"_id"`
	Name         string        `json:"name" bson:"name"`
	Email        string        `json:"email" bson:"email"`
	DeviceTokens []DeviceToken `json:"device_tokens,omitempty" bson:"deviceTokens,omitempty"`
	Preferences  *Preferences  `json:"preferences,omitempty" bson:"preferences,omitempty"`
}

// DeviceToken is a push-capable device registration.
type DeviceToken struct {
	Token    string `json:"token" bson:"token"`
	Platform string `json:"platform,omitempty" bson:"platform,omitempty"`
}

// Preferences is the stored preference record of a recipient.
type Preferences struct {
	Language      string              `json:"language,omitempty" bson:"language,omitempty"`
	Notifications *ChannelPreferences `json:"notifications,omitempty" bson:"notifications,omitempty"`
}

// ChannelPreferences holds per-channel opt-outs. A nil field means the
// recipient never chose, which counts as allowed.
type ChannelPreferences struct {
	Email *bool `json:"email,omitempty" bson:"email,omitempty"`
	Push  *bool `json:"push,omitempty" bson:"push,omitempty"`
	SMS   *bool `json:"sms,omitempty" bson:"sms,omitempty"`
}

// Tokens returns the non-empty device token strings.
func (r Recipient) Tokens() []string {
	out := make([]string, 0, len(r.DeviceTokens))
	for _, t := range r.DeviceTokens {
		if t.Token != "" {
			out = append(out, t.Token)
		}
	}
	return out
}

// Allows reports whether ch may be attempted for r.
// Only an explicit false suppresses a channel.
func (r Recipient) Allows(ch Channel) bool {
	if r.Preferences == nil || r.Preferences.Notifications == nil {
		return true
	}
	var pref *bool
	switch ch {
	case ChannelEmail:
		pref = r.Preferences.Notifications.Email
	case ChannelPush:
		pref = r.Preferences.Notifications.Push
	}
	return pref == nil || *pref
}

// AllowedChannels returns the channels the preference gate lets through,
// in delivery order.
func AllowedChannels(r Recipient) []Channel {
	allowed := make([]Channel, 0, len(allChannels))
	for _, ch := range allChannels {
		if r.Allows(ch) {
			allowed = append(allowed, ch)
		}
	}
	return allowed
}
