package mqtt

import "testing"

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", Topics{}.SystemStatus(), "tickerbox/system/status"},
		{"health", Topics{}.SystemHealth(), "tickerbox/system/health"},
		{"item", Topics{}.StreamItem("tickerbox/stream", "golang"), "tickerbox/stream/golang"},
		{"item trailing slash", Topics{}.StreamItem("bridge/", "golang"), "bridge/golang"},
		{"fault", Topics{}.StreamFault("tickerbox/stream"), "tickerbox/stream/_fault"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopicFromStream(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOk bool
	}{
		{"tickerbox/stream/golang", "golang", true},
		{"tickerbox/stream/a/b", "", false},
		{"tickerbox/stream/", "", false},
		{"other/golang", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Topics{}.TopicFromStream("tickerbox/stream", tt.name)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("TopicFromStream(%q) = %q, %v, want %q, %v", tt.name, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}
