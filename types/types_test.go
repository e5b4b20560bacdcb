package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{
			name: "valid rule",
			rule: Rule{SourceTopic: "esp32/1/button", TargetTopic: "esp32/1/led", Enabled: true},
		},
		{
			name:    "missing source topic",
			rule:    Rule{TargetTopic: "esp32/1/led"},
			wantErr: true,
		},
		{
			name:    "blank source topic",
			rule:    Rule{SourceTopic: "   ", TargetTopic: "esp32/1/led"},
			wantErr: true,
		},
		{
			name:    "missing target topic",
			rule:    Rule{SourceTopic: "esp32/1/button"},
			wantErr: true,
		},
		{
			name:    "qos out of range",
			rule:    Rule{SourceTopic: "a", TargetTopic: "b", QoS: 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJoinTopic(t *testing.T) {
	assert.Equal(t, "house/demo/init", JoinTopic("house", "demo", "init"))
	assert.Equal(t, "demo/init", JoinTopic("", "demo", "init"))
	assert.Equal(t, "init", JoinTopic("", "", "init"))
	assert.Equal(t, "", JoinTopic())
}

func TestNewTimeBroadcast(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	b := NewTimeBroadcast(ts)

	assert.Equal(t, "2025-03-14 09:26:53", b.DateTime)
	assert.Equal(t, "2025-03-14", b.Date)
	assert.Equal(t, "09:26:53", b.Time)
	assert.Equal(t, "09:26", b.TimeShort)
}
