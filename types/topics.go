package types

// Well-known topic leaf names published by the scheduler. Full subjects
// are namespace/project/leaf joined by JoinTopic.
const (
	TopicInit = "init"

	TopicIsDayMode = "is_day_mode"

	TopicSunriseNow = "sunrise_now"
	TopicSunsetNow  = "sunset_now"

	TopicMinutesNextSunrise = "minutes_next_sunrise"
	TopicMinutesNextSunset  = "minutes_next_sunset"

	TopicMinutesAfterSunrise = "minutes_after_sunrise"
	TopicMinutesAfterSunset  = "minutes_after_sunset"

	TopicCountDown        = "count_down"
	TopicCountDownElapsed = "count_down_elapsed"
)

// JoinTopic joins topic segments with "/", skipping empty parts.
func JoinTopic(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out == "" {
			out = p
			continue
		}
		out += "/" + p
	}
	return out
}
